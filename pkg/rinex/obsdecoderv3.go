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
)

// ObsDecoderV3 reads and decodes header and data records from a RINEX-3
// observation input stream.
type ObsDecoderV3 struct {
	// The Header is valid after NewObsDecoderV3. The header must exist,
	// otherwise ErrNoHeader will be returned.
	Header  ObsHeader
	sc      *bufio.Scanner
	epo     *Epoch // the current epoch
	lineNum int
	err     error
}

// NewObsDecoderV3 creates a new decoder for RINEX-3 observation data.
// The RINEX header will be read implicitly. The header must exist.
//
// It is the caller's responsibility to call Close on the underlying reader when done!
func NewObsDecoderV3(r io.Reader) (*ObsDecoderV3, error) {
	dec := &ObsDecoderV3{sc: bufio.NewScanner(r)}
	dec.Header, dec.err = dec.readHeader()
	return dec, dec.err
}

// Err returns the first non-EOF error that was encountered by the decoder.
func (dec *ObsDecoderV3) Err() error {
	if dec.err == io.EOF {
		return nil
	}
	return dec.err
}

// readHeader reads the RINEX-3 observation header up to the END OF HEADER
// terminator. A missing terminator is a header error.
func (dec *ObsDecoderV3) readHeader() (hdr ObsHeader, err error) {
	hdr.ObsTypes = map[gnss.System][]ObsCode{}
	var rememberSys gnss.System
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
			if hdr.RINEXVersion < 3 || hdr.RINEXVersion >= 4 {
				return hdr, fmt.Errorf("%w: version %.2f, want 3.x", ErrUnsupportedFormat, hdr.RINEXVersion)
			}
			hdr.RINEXType = strings.TrimSpace(val[20:21])
			if hdr.RINEXType != "O" {
				return hdr, fmt.Errorf("%w: file type %q, want O", ErrUnsupportedFormat, hdr.RINEXType)
			}
			sys, err := gnss.ParseSystem(val[40:41])
			if err != nil {
				return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: err}
			}
			hdr.SatSystem = sys
		case "PGM / RUN BY / DATE":
			if hdr.Pgm != "" { // further lines hold the file history
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
		case "MARKER TYPE":
			hdr.MarkerType = strings.TrimSpace(val[20:40])
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
		case "SYS / # / OBS TYPES":
			var sys gnss.System
			if val[:1] == " " { // line continued
				if rememberSys == 0 {
					return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: errors.New("continuation without preceding record")}
				}
				sys = rememberSys
			} else {
				var err error
				if sys, err = gnss.ParseSystem(val[:1]); err != nil {
					return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: err}
				}
				rememberSys = sys
				nTypes, err := parseInt(val[3:6])
				if err != nil {
					return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: err}
				}
				hdr.ObsTypes[sys] = make([]ObsCode, 0, nTypes)
			}
			// up to 13 codes per line, 4-char slots starting at column 8
			obscodes := convStringsToObscodes(strings.Fields(val[7:]))
			hdr.ObsTypes[sys] = append(hdr.ObsTypes[sys], obscodes...)
		case "SIGNAL STRENGTH UNIT":
			hdr.SignalStrengthUnit = strings.TrimSpace(val[:20])
		case "INTERVAL":
			if f64, err := parseFloat(val[:10]); err == nil {
				hdr.Interval = &f64
			}
		case "TIME OF FIRST OBS":
			t, err := time.Parse(epochTimeFormat, strings.TrimSpace(val[:43]))
			if err != nil {
				return hdr, &HeaderError{Line: dec.lineNum, Label: key, Err: err}
			}
			hdr.TimeOfFirstObs = t
		case "TIME OF LAST OBS":
			t, err := time.Parse(epochTimeFormat, strings.TrimSpace(val[:43]))
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
func (dec *ObsDecoderV3) NextEpoch() bool {
readln:
	for dec.readLine() {
		line := dec.line()
		if strings.TrimSpace(line) == "" {
			continue
		}

		if !strings.HasPrefix(line, ">") || len(line) < 35 {
			dec.setErr(&ObsError{Line: dec.lineNum, Err: fmt.Errorf("expected epoch record: %q", line)})
			return false
		}

		epoFlag, err := strconv.Atoi(line[31:32])
		if err != nil {
			dec.setErr(&ObsError{Line: dec.lineNum, Err: fmt.Errorf("parse epoch flag: %q: %v", line, err)})
			return false
		}

		numInt, err := parseInt(line[32:35])
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

		epoTime, err := time.Parse(epochTimeFormat, line[2:29])
		if err != nil {
			dec.setErr(&ObsError{Line: dec.lineNum, Err: fmt.Errorf("parse epoch time: %q: %v", line, err)})
			return false
		}

		dec.epo = &Epoch{Time: epoTime, Flag: int8(epoFlag), NumSat: uint8(numInt),
			ObsList: make([]SatObs, 0, numInt)}

		// Read observations, one line per satellite.
		for ii := 1; ii <= numInt; ii++ {
			if ok := dec.readLine(); !ok {
				dec.setErr(&ObsError{Line: dec.lineNum, Epoch: epoTime,
					Err: fmt.Errorf("epoch declares %d satellites but has %d records", numInt, ii-1)})
				return false
			}
			line = dec.line()
			linelen := len(line)

			prn, err := newPRN(line[0:3])
			if err != nil {
				dec.setErr(&ObsError{Line: dec.lineNum, Epoch: epoTime, Err: err})
				return false
			}

			obsTypes, ok := dec.Header.ObsTypes[prn.Sys]
			if !ok {
				dec.setErr(&ObsError{Line: dec.lineNum, Epoch: epoTime, PRN: prn.String(),
					Err: fmt.Errorf("no observation types declared for system %s", prn.Sys)})
				return false
			}

			obsPerTyp := make(map[ObsCode]Obs, len(obsTypes))
			for ityp, typ := range obsTypes {
				pos := 3 + 16*ityp
				if pos >= linelen {
					obsPerTyp[typ] = Obs{} // short line, trailing fields are blank
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
			}
			dec.epo.ObsList = append(dec.epo.ObsList, SatObs{Prn: prn, Obss: obsPerTyp})
		}
		return true
	}

	if err := dec.sc.Err(); err != nil {
		dec.setErr(fmt.Errorf("rinex: read epochs: %v", err))
	}
	return false // EOF
}

// Epoch returns the most recent epoch generated by a call to NextEpoch.
func (dec *ObsDecoderV3) Epoch() *Epoch {
	return dec.epo
}

// ObsHeader returns the decoded header.
func (dec *ObsDecoderV3) ObsHeader() *ObsHeader {
	return &dec.Header
}

// setErr adds an error.
func (dec *ObsDecoderV3) setErr(err error) {
	dec.err = errors.Join(dec.err, err)
}

// readLine reads the next line into buffer. It returns false if an error
// occurs or EOF was reached.
func (dec *ObsDecoderV3) readLine() bool {
	if ok := dec.sc.Scan(); !ok {
		return ok
	}
	dec.lineNum++
	return true
}

// line returns the current line.
func (dec *ObsDecoderV3) line() string {
	return dec.sc.Text()
}

func parseCoord(s string) (Coord, error) {
	var coord Coord
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return coord, fmt.Errorf("parse XYZ coordinate from %q", s)
	}
	var err error
	if coord.X, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return coord, err
	}
	if coord.Y, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return coord, err
	}
	if coord.Z, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return coord, err
	}
	return coord, nil
}

func parseCoordNEU(s string) (CoordNEU, error) {
	var delta CoordNEU
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return delta, fmt.Errorf("parse antenna deltas from %q", s)
	}
	var err error
	if delta.Up, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return delta, err
	}
	if delta.E, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return delta, err
	}
	if delta.N, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return delta, err
	}
	return delta, nil
}
