package rinex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gnsslab/gorinex/pkg/gnss"
	"github.com/gnsslab/gorinex/pkg/timemath"
)

// ObsDecoderV2 reads and decodes header and data records from a RINEX-2
// observation input stream.
//
// RINEX-2 declares a single global observation-type list for all satellite
// systems. The decoder keeps that list in Header.AllObsTypes and synthesizes
// the per-system table in Header.ObsTypes as constellations appear in the
// data records.
type ObsDecoderV2 struct {
	// The Header is valid after NewObsDecoderV2. The header must exist,
	// otherwise ErrNoHeader will be returned.
	Header  ObsHeader
	sc      *bufio.Scanner
	epo     *Epoch // the current epoch
	lineNum int
	err     error
}

// NewObsDecoderV2 creates a new decoder for RINEX-2 observation data.
// The RINEX header will be read implicitly. The header must exist.
//
// It is the caller's responsibility to call Close on the underlying reader when done!
func NewObsDecoderV2(r io.Reader) (*ObsDecoderV2, error) {
	dec := &ObsDecoderV2{sc: bufio.NewScanner(r)}
	dec.Header, dec.err = dec.readHeader()
	return dec, dec.err
}

// Err returns the first non-EOF error that was encountered by the decoder.
func (dec *ObsDecoderV2) Err() error {
	if dec.err == io.EOF {
		return nil
	}
	return dec.err
}

// readHeader reads the RINEX-2 observation header up to the END OF HEADER
// terminator. A missing terminator is a header error.
func (dec *ObsDecoderV2) readHeader() (hdr ObsHeader, err error) {
	hdr.ObsTypes = map[gnss.System][]ObsCode{}
	for dec.readLine() {
		line := dec.line()

		if dec.lineNum == 1 {
			if !strings.Contains(line, "RINEX VERS") {
				return hdr, ErrNoHeader
			}
		}

		if len(line) < 60 {
			continue
		}

		val := line[:60] // RINEX files are ASCII
		key := strings.TrimSpace(line[60:])
		hdr.Labels = append(hdr.Labels, key)

		switch key {
		case "RINEX VERSION / TYPE":
			f64, err := strconv.ParseFloat(strings.TrimSpace(val[:20]), 32)
			if err != nil {
				return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: fmt.Errorf("parse version: %v", err)}
			}
			hdr.RINEXVersion = float32(f64)
			if hdr.RINEXVersion < 2 || hdr.RINEXVersion >= 3 {
				return hdr, fmt.Errorf("%w: version %.2f, want 2.x", ErrUnsupportedFormat, hdr.RINEXVersion)
			}
			hdr.RINEXType = strings.TrimSpace(val[20:21])
			if hdr.RINEXType != "O" {
				return hdr, fmt.Errorf("%w: file type %q, want O", ErrUnsupportedFormat, hdr.RINEXType)
			}
			// The satellite system is optional in RINEX-2, blank means GPS.
			abbr := val[40:41]
			if abbr == " " {
				abbr = "G"
			}
			sys, err := gnss.ParseSystem(abbr)
			if err != nil {
				return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: err}
			}
			hdr.SatSystem = sys
		case "PGM / RUN BY / DATE":
			if hdr.Pgm != "" {
				continue
			}
			hdr.Pgm = strings.TrimSpace(val[:20])
			hdr.RunBy = strings.TrimSpace(val[20:40])
			if date, err := parseHeaderDate(strings.TrimSpace(val[40:])); err == nil {
				hdr.Date = date
			} else {
				log.Printf("parse header date: %q, %v", val[40:], err)
			}
		case "COMMENT":
			hdr.Comments = append(hdr.Comments, strings.TrimSpace(val))
		case "MARKER NAME":
			hdr.MarkerName = strings.TrimSpace(val)
		case "MARKER NUMBER":
			hdr.MarkerNumber = strings.TrimSpace(val[:20])
		case "OBSERVER / AGENCY":
			hdr.Observer = strings.TrimSpace(val[:20])
			hdr.Agency = strings.TrimSpace(val[20:])
		case "REC # / TYPE / VERS":
			hdr.ReceiverNumber = strings.TrimSpace(val[:20])
			hdr.ReceiverType = strings.TrimSpace(val[20:40])
			hdr.ReceiverVersion = strings.TrimSpace(val[40:])
		case "ANT # / TYPE":
			hdr.AntennaNumber = strings.TrimSpace(val[:20])
			hdr.AntennaType = strings.TrimSpace(val[20:40])
		case "APPROX POSITION XYZ":
			pos, err := parseCoord(val)
			if err != nil {
				return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: err}
			}
			hdr.Position = pos
		case "ANTENNA: DELTA H/E/N":
			delta, err := parseCoordNEU(val)
			if err != nil {
				return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: err}
			}
			hdr.AntennaDelta = delta
		case "WAVELENGTH FACT L1/2":
			fact, err := parseWavelengthFact(val)
			if err != nil {
				return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: err}
			}
			hdr.WavelengthFacts = append(hdr.WavelengthFacts, fact)
		case "# / TYPES OF OBSERV":
			if strings.TrimSpace(val[:6]) != "" { // first line carries the count
				nTypes, err := parseInt(val[:6])
				if err != nil {
					return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: err}
				}
				hdr.AllObsTypes = make([]ObsCode, 0, nTypes)
			} else if hdr.AllObsTypes == nil {
				return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: errors.New("continuation without preceding record")}
			}
			// up to 9 codes per line
			obscodes := convStringsToObscodes(strings.Fields(val[6:]))
			hdr.AllObsTypes = append(hdr.AllObsTypes, obscodes...)
		case "INTERVAL":
			if f64, err := parseFloat(val[:10]); err == nil {
				hdr.Interval = &f64
			}
		case "TIME OF FIRST OBS":
			t, err := parseObsTimev2(val)
			if err != nil {
				return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: err}
			}
			hdr.TimeOfFirstObs = t
		case "TIME OF LAST OBS":
			t, err := parseObsTimev2(val)
			if err != nil {
				return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: err}
			}
			hdr.TimeOfLastObs = t
		case "LEAP SECONDS":
			i, err := parseInt(val[:6])
			if err != nil {
				return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: err}
			}
			hdr.LeapSeconds = &i
		case "# OF SATELLITES":
			i, err := parseInt(val[:6])
			if err != nil {
				return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: err}
			}
			hdr.NSatellites = i
		case "END OF HEADER":
			if err := dec.sc.Err(); err != nil {
				return hdr, err
			}
			return hdr, nil
		default:
			// Unknown labels are ignored so that future header extensions do
			// not fail the parse.
		}
	}

	if dec.lineNum == 0 {
		return hdr, ErrNoHeader
	}
	if err := dec.sc.Err(); err != nil {
		return hdr, err
	}
	return hdr, &HeaderError{Line: dec.lineNum, Label: "END OF HEADER", Err: errors.New("terminator not found")}
}

// NextEpoch reads the observations for the next epoch.
// It returns false when the scan stops, either by reaching the end of the input or an error.
func (dec *ObsDecoderV2) NextEpoch() bool {
readln:
	for dec.readLine() {
		line := dec.line()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < 32 {
			dec.setErr(&ObsError{Line: dec.lineNum, Err: fmt.Errorf("expected epoch record: %q", line)})
			return false
		}

		epoFlag, err := strconv.Atoi(line[28:29])
		if err != nil {
			dec.setErr(&ObsError{Line: dec.lineNum, Err: fmt.Errorf("parse epoch flag: %q: %v", line, err)})
			return false
		}

		numInt, err := parseInt(line[29:32])
		if err != nil {
			dec.setErr(&ObsError{Line: dec.lineNum, Err: fmt.Errorf("parse satellite count: %q: %v", line, err)})
			return false
		}

		// Special events carry their record count in the satellite-count
		// field. Skip the payload and resync on the next epoch record.
		if epoFlag > 1 {
			for ii := 1; ii <= numInt; ii++ {
				if ok := dec.readLine(); !ok {
					dec.setErr(&ObsError{Line: dec.lineNum, Err: fmt.Errorf("special event truncated after %d of %d records", ii-1, numInt)})
					return false
				}
			}
			continue readln
		}

		epoTime, err := parseEpochTimev2(line)
		if err != nil {
			dec.setErr(&ObsError{Line: dec.lineNum, Err: err})
			return false
		}

		// Read the satellite list, 12 ids per line with continuation lines.
		pos := 32
		sats := make([]PRN, 0, numInt)
		for iSat := 0; iSat < numInt; iSat++ {
			if iSat > 0 && iSat%12 == 0 {
				if ok := dec.readLine(); !ok {
					dec.setErr(&ObsError{Line: dec.lineNum, Epoch: epoTime,
						Err: fmt.Errorf("satellite list truncated after %d of %d ids", iSat, numInt)})
					return false
				}
				line = dec.line()
				pos = 32
			}
			if pos+3 > len(line) {
				dec.setErr(&ObsError{Line: dec.lineNum, Epoch: epoTime,
					Err: fmt.Errorf("satellite list truncated after %d of %d ids", iSat, numInt)})
				return false
			}
			prn, err := newPRN(line[pos : pos+3])
			if err != nil {
				dec.setErr(&ObsError{Line: dec.lineNum, Epoch: epoTime, Err: err})
				return false
			}
			sats = append(sats, prn)
			pos += 3
		}

		dec.epo = &Epoch{Time: epoTime, Flag: int8(epoFlag), NumSat: uint8(numInt),
			ObsList: make([]SatObs, 0, numInt)}

		// Read observations: 5 fields of 16 chars per line, continued on
		// following lines when the global type list is longer. The field
		// sequence per satellite is the reassembled concatenation of its
		// continuation lines.
		obsTypes := dec.Header.AllObsTypes
		for _, prn := range sats {
			if ok := dec.readLine(); !ok {
				dec.setErr(&ObsError{Line: dec.lineNum, Epoch: epoTime, PRN: prn.String(),
					Err: fmt.Errorf("epoch declares %d satellites but has %d records", numInt, len(dec.epo.ObsList))})
				return false
			}
			line = dec.line()
			linelen := len(line)

			obsPerTyp := make(map[ObsCode]Obs, len(obsTypes))
			pos := 0
			for ityp, typ := range obsTypes {
				if ityp > 0 && ityp%5 == 0 {
					if ok := dec.readLine(); !ok {
						dec.setErr(&ObsError{Line: dec.lineNum, Epoch: epoTime, PRN: prn.String(),
							Err: fmt.Errorf("observation record truncated at %s", typ)})
						return false
					}
					line = dec.line()
					linelen = len(line)
					pos = 0
				}
				if pos >= linelen {
					obsPerTyp[typ] = Obs{} // short line, trailing fields are blank
					pos += 16
					continue
				}
				end := pos + 16
				if end > linelen {
					end = linelen
				}
				obs, err := decodeObs(line[pos:end], int8(epoFlag))
				if err != nil {
					dec.setErr(&ObsError{Line: dec.lineNum, Epoch: epoTime, PRN: prn.String(),
						Err: fmt.Errorf("parse %s observation: %v", typ, err)})
					return false
				}
				obsPerTyp[typ] = obs
				pos += 16
			}
			dec.epo.ObsList = append(dec.epo.ObsList, SatObs{Prn: prn, Obss: obsPerTyp})

			// Synthesize the per-system table from the global list as
			// constellations appear.
			if _, ok := dec.Header.ObsTypes[prn.Sys]; !ok {
				dec.Header.ObsTypes[prn.Sys] = append([]ObsCode(nil), obsTypes...)
			}
		}
		return true
	}

	if err := dec.sc.Err(); err != nil {
		dec.setErr(fmt.Errorf("rinex2: read epochs: %v", err))
	}
	return false // EOF
}

// Epoch returns the most recent epoch generated by a call to NextEpoch.
func (dec *ObsDecoderV2) Epoch() *Epoch {
	return dec.epo
}

// ObsHeader returns the decoded header.
func (dec *ObsDecoderV2) ObsHeader() *ObsHeader {
	return &dec.Header
}

// setErr adds an error.
func (dec *ObsDecoderV2) setErr(err error) {
	dec.err = errors.Join(dec.err, err)
}

// readLine reads the next line into buffer. It returns false if an error
// occurs or EOF was reached.
func (dec *ObsDecoderV2) readLine() bool {
	if ok := dec.sc.Scan(); !ok {
		return ok
	}
	dec.lineNum++
	return true
}

// line returns the current line.
func (dec *ObsDecoderV2) line() string {
	return dec.sc.Text()
}

// parseEpochTimev2 decodes the date/time of a RINEX-2 epoch record
// " yy mm dd hh mm ss.sssssss". The two-digit year is resolved per the RINEX
// convention, not per Go's time package.
func parseEpochTimev2(line string) (time.Time, error) {
	yy, err := parseInt(line[1:3])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse epoch year: %q: %v", line, err)
	}
	year, err := timemath.ResolveTwoDigitYear(yy)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse epoch time: %q: %w", line, err)
	}
	mon, err := parseInt(line[4:6])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse epoch month: %q: %v", line, err)
	}
	day, err := parseInt(line[7:9])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse epoch day: %q: %v", line, err)
	}
	hour, err := parseInt(line[10:12])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse epoch hour: %q: %v", line, err)
	}
	min, err := parseInt(line[13:15])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse epoch minute: %q: %v", line, err)
	}
	sec, err := parseFloat(line[15:26])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse epoch seconds: %q: %v", line, err)
	}

	t := time.Date(year, time.Month(mon), day, hour, min, 0, 0, time.UTC)
	return t.Add(time.Duration(sec * float64(time.Second))), nil
}

// parseObsTimev2 decodes the TIME OF FIRST/LAST OBS record of a RINEX-2
// header. Some producers still write two-digit years here.
func parseObsTimev2(val string) (time.Time, error) {
	year, err := parseInt(val[:6])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse year: %q: %v", val, err)
	}
	if year < 100 {
		if year, err = timemath.ResolveTwoDigitYear(year); err != nil {
			return time.Time{}, err
		}
	}
	mon, err := parseInt(val[6:12])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse month: %q: %v", val, err)
	}
	day, err := parseInt(val[12:18])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day: %q: %v", val, err)
	}
	hour, err := parseInt(val[18:24])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse hour: %q: %v", val, err)
	}
	min, err := parseInt(val[24:30])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse minute: %q: %v", val, err)
	}
	sec, err := parseFloat(val[30:43])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse seconds: %q: %v", val, err)
	}

	t := time.Date(year, time.Month(mon), day, hour, min, 0, 0, time.UTC)
	return t.Add(time.Duration(sec * float64(time.Second))), nil
}

// parseWavelengthFact decodes one WAVELENGTH FACT L1/2 record: the L1 and L2
// factors, and up to seven satellite ids in 6-char slots. A record without
// satellite ids applies to all satellites. Single-frequency receivers leave
// the L2 factor blank, which means factor 0.
func parseWavelengthFact(val string) (WavelengthFact, error) {
	var fact WavelengthFact
	var err error
	if fact.L1, err = parseInt(val[:6]); err != nil {
		return fact, fmt.Errorf("parse L1 factor: %v", err)
	}
	if strings.TrimSpace(val[6:12]) != "" {
		if fact.L2, err = parseInt(val[6:12]); err != nil {
			return fact, fmt.Errorf("parse L2 factor: %v", err)
		}
	}

	numSats := 0
	if strings.TrimSpace(val[12:18]) != "" {
		if numSats, err = parseInt(val[12:18]); err != nil {
			return fact, fmt.Errorf("parse satellite count: %v", err)
		}
	}
	for i := 0; i < numSats && i < 7; i++ {
		slot := 18 + i*6
		if slot+6 > len(val) {
			break
		}
		prn, err := newPRN(val[slot+3 : slot+6])
		if err != nil {
			return fact, fmt.Errorf("parse satellite id: %v", err)
		}
		fact.Sats = append(fact.Sats, prn)
	}
	return fact, nil
}
