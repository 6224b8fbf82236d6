package rinex

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gnsslab/gorinex/pkg/gnss"
	"github.com/gnsslab/gorinex/pkg/timemath"
)

// The RINEX observation code that specifies frequency, signal and tracking mode like "L1C".
type ObsCode string

// Coord defines a XYZ coordinate.
type Coord struct {
	X, Y, Z float64
}

// CoordNEU defines a North-, East-, Up-coordinate or eccentrity
type CoordNEU struct {
	N, E, Up float64
}

// Obs specifies a single RINEX observation field.
// Val is nil if the field is blank in the source, which is distinct from a
// stored value of zero.
type Obs struct {
	Val *float64 // The observation itself, nil if blank.
	LLI int8     // LLI is the loss of lock indicator.
	SNR int8     // SNR is the signal-strength indicator digit.
}

// PRN specifies a GNSS satellite.
type PRN struct {
	Sys gnss.System // The satellite system.
	Num int8        // The satellite number.
}

// newPRN returns a new PRN for the string prn that is e.g. G12.
// A blank system character denotes GPS, as allowed in RINEX-2 files.
func newPRN(prn string) (PRN, error) {
	if len(prn) < 3 {
		return PRN{}, fmt.Errorf("invalid satellite id: %q", prn)
	}
	abbr := prn[:1]
	if abbr == " " {
		abbr = "G"
	}
	sys, err := gnss.ParseSystem(abbr)
	if err != nil {
		return PRN{}, fmt.Errorf("invalid satellite system: %q", prn)
	}
	snum, err := strconv.Atoi(strings.TrimSpace(prn[1:3]))
	if err != nil {
		return PRN{}, fmt.Errorf("parse sat num: %q: %v", prn, err)
	}
	if snum < 1 {
		return PRN{}, fmt.Errorf("check satellite number '%v%d'", sys, snum)
	}
	return PRN{Sys: sys, Num: int8(snum)}, nil
}

// String is a PRN Stringer, the normalized form with a zero-padded number like "G01".
func (prn PRN) String() string {
	return fmt.Sprintf("%s%02d", prn.Sys.Abbr(), prn.Num)
}

// SatObs contains all observations for a satellite per epoch.
type SatObs struct {
	Prn  PRN             // The satellite number or PRN.
	Obss map[ObsCode]Obs // A map of observations with the obs-code as key.
}

// Epoch contains a RINEX obs data epoch.
type Epoch struct {
	Time    time.Time // The epoch time.
	Flag    int8      // The epoch flag 0:OK, 1:power failure between previous and current epoch, >1: special event.
	NumSat  uint8     // The number of satellites per epoch.
	ObsList []SatObs  // The list of observations per epoch, in source order.
}

// WavelengthFact holds one WAVELENGTH FACT L1/2 record of a RINEX-2 header.
// An empty satellite list means the factors apply to all satellites.
type WavelengthFact struct {
	L1, L2 int
	Sats   []PRN
}

// AppliesTo reports whether the record covers the given satellite.
func (w WavelengthFact) AppliesTo(prn PRN) bool {
	if len(w.Sats) == 0 {
		return true
	}
	for _, sat := range w.Sats {
		if sat == prn {
			return true
		}
	}
	return false
}

// A ObsHeader provides the RINEX Observation Header information.
// It is built once by the header parser and read-only afterwards.
type ObsHeader struct {
	RINEXVersion float32     `validate:"required"` // RINEX format version.
	RINEXType    string      `validate:"required"` // RINEX file type, O for obs.
	SatSystem    gnss.System // The header satellite system, "Mixed" if more than one.

	Pgm   string    // name of program creating this file
	RunBy string    // name of agency creating this file
	Date  time.Time // Date and time of file creation.

	Comments []string // * comment lines

	MarkerName   string // The name of the antenna marker, usually the station ID.
	MarkerNumber string
	MarkerType   string

	Observer, Agency string

	ReceiverNumber, ReceiverType, ReceiverVersion string
	AntennaNumber, AntennaType                    string

	Position     Coord    // Geocentric approximate marker position [m]
	AntennaDelta CoordNEU // Antenna height and horizontal eccentricities [m]

	// ObsTypes is the observation-type table: the ordered list of observation
	// codes per satellite system. Keys are restricted to the systems known to
	// package gnss. For RINEX-2 files the table is synthesized from the global
	// list once the observed constellations are known; the original flat list
	// is kept in AllObsTypes.
	ObsTypes map[gnss.System][]ObsCode

	// AllObsTypes is the global RINEX-2 "# / TYPES OF OBSERV" list, the "ALL"
	// entry of the serialized table. It is nil for RINEX-3 files.
	AllObsTypes []ObsCode

	// WavelengthFacts are the RINEX-2 wavelength factor records in file order.
	WavelengthFacts []WavelengthFact

	SignalStrengthUnit string
	Interval           *float64 // Nominal observation interval in seconds, nil if absent.
	TimeOfFirstObs     time.Time
	TimeOfLastObs      time.Time
	LeapSeconds        *int // The current number of leap seconds, nil if absent.
	NSatellites        int  // Number of satellites stored in the file.

	Labels []string // all header labels found.
}

// use a single instance of Validate, it caches struct info
var validate *validator.Validate

// Validate checks the header for the records every observation file must carry.
func (hdr *ObsHeader) Validate() error {
	if hdr.RINEXType != "O" {
		return fmt.Errorf("not an observation file type: %q", hdr.RINEXType)
	}
	if validate == nil {
		validate = validator.New()
	}
	return validate.Struct(hdr)
}

// SatSystems returns all satellite systems of the observation-type table.
func (hdr *ObsHeader) SatSystems() []gnss.System {
	sysList := make([]gnss.System, 0, len(hdr.ObsTypes))
	for sys := range hdr.ObsTypes {
		sysList = append(sysList, sys)
	}
	return sysList
}

// WavelengthFactFor resolves the wavelength factors for a satellite.
// Records are applied in file order: a later record that covers the satellite,
// globally or explicitly, overrides an earlier one.
func (hdr *ObsHeader) WavelengthFactFor(prn PRN) (fact WavelengthFact, found bool) {
	for _, w := range hdr.WavelengthFacts {
		if w.AppliesTo(prn) {
			fact, found = w, true
		}
	}
	return fact, found
}

// An Observation is one row of the flat observation table: the decoded fields
// of one signal channel of one satellite at one epoch. The four measurement
// columns are nil where the source field is blank.
type Observation struct {
	Date          time.Time // The calendar date of the epoch at 00:00 UTC.
	EpochSec      float64   // Seconds of day of the epoch.
	MJD           float64   // Modified Julian Date of the epoch.
	Constellation string    // Single-character constellation code.
	Sat           string    // Normalized satellite id, e.g. "G07".
	Channel       string    // Signal/frequency channel label, e.g. "1C".
	Range         *float64  // Pseudorange.
	Phase         *float64  // Carrier phase.
	Doppler       *float64
	SNR           *float64 // Signal-to-noise ratio from the S-observation.
}

// obsChannel splits an observation code into its measurement kind and the
// channel label: L1C -> ('L', "1C"), RINEX-2 C1 -> ('C', "1"). The RINEX-2
// precise code P gets a P-suffixed channel to keep it apart from the C code
// on the same frequency: P2 -> ('C', "2P").
func obsChannel(code ObsCode) (kind byte, channel string) {
	kind = code[0]
	channel = string(code[1:])
	if kind == 'P' {
		kind = 'C'
		channel += "P"
	}
	return kind, channel
}

// flattenEpoch appends one Observation row per satellite and channel of the
// epoch to rows. A channel yields a row only if at least one of its fields
// holds a value; within a row, blank fields stay nil.
func flattenEpoch(rows []Observation, epo *Epoch, obsTypes map[gnss.System][]ObsCode) []Observation {
	date := time.Date(epo.Time.Year(), epo.Time.Month(), epo.Time.Day(), 0, 0, 0, 0, time.UTC)
	epochSec := timemath.SecondsOfDay(epo.Time)
	mjd := timemath.MJD(date) + epochSec/86400

	for _, satObs := range epo.ObsList {
		perChannel := map[string]int{} // channel -> index into rows
		for _, code := range obsTypes[satObs.Prn.Sys] {
			obs, ok := satObs.Obss[code]
			if !ok {
				continue
			}
			kind, channel := obsChannel(code)

			i, ok := perChannel[channel]
			if !ok {
				if obs.Val == nil {
					continue // a channel materializes with its first stored value
				}
				rows = append(rows, Observation{
					Date:          date,
					EpochSec:      epochSec,
					MJD:           mjd,
					Constellation: satObs.Prn.Sys.Abbr(),
					Sat:           satObs.Prn.String(),
					Channel:       channel,
				})
				i = len(rows) - 1
				perChannel[channel] = i
			}

			switch kind {
			case 'C':
				rows[i].Range = obs.Val
			case 'L':
				rows[i].Phase = obs.Val
			case 'D':
				rows[i].Doppler = obs.Val
			case 'S':
				rows[i].SNR = obs.Val
			}
		}
	}
	return rows
}

// decodeObs decodes a single 16-char observation field with its packed
// indicator sub-columns. A blank value sub-field yields a nil value, never
// zero. The input may be shorter than 16 chars, missing trailing sub-fields
// are treated as blank.
func decodeObs(s string, flag int8) (obs Obs, err error) {
	lli := 0
	snr := 0

	// Value
	valPart := s
	if len(s) > 14 {
		valPart = s[:14]
	}
	if valStr := strings.TrimSpace(valPart); valStr != "" {
		val, err := strconv.ParseFloat(valStr, 64)
		if err != nil {
			return obs, fmt.Errorf("parse obs: %q: %v", s, err)
		}
		obs.Val = &val
	}

	// LLI
	if len(s) > 14 && s[14:15] != " " {
		lli, err = strconv.Atoi(s[14:15])
		if err != nil {
			return obs, fmt.Errorf("parse LLI: %q: %v", s, err)
		}
	}
	// flag 1: power failure since the previous epoch
	if flag == 1 {
		lli |= 1
	}
	obs.LLI = int8(lli)

	// Signal strength indicator
	if len(s) > 15 && s[15:16] != " " {
		snr, err = strconv.Atoi(s[15:16])
		if err != nil {
			return obs, fmt.Errorf("parse signal strength: %q: %v", s, err)
		}
	}
	obs.SNR = int8(snr)
	return obs, nil
}

// Convert strings to Obscodes.
func convStringsToObscodes(strs []string) []ObsCode {
	obscodes := make([]ObsCode, 0, len(strs))
	for _, str := range strs {
		obscodes = append(obscodes, ObsCode(str))
	}
	return obscodes
}
