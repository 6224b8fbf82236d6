package rinex

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Decoder is the common interface of the version-specific observation
// decoders. NewObsDecoder returns the decoder matching the input.
type Decoder interface {
	// ObsHeader returns the decoded header.
	ObsHeader() *ObsHeader

	// NextEpoch reads the observations for the next epoch. It returns false
	// when the scan stops, either by reaching the end of the input or an error.
	NextEpoch() bool

	// Epoch returns the most recent epoch generated by a call to NextEpoch.
	Epoch() *Epoch

	// Err returns the first non-EOF error that was encountered by the decoder.
	Err() error
}

// NewObsDecoder probes the version record of the input and returns the
// matching observation decoder. The RINEX header will be read implicitly.
//
// It is the caller's responsibility to call Close on the underlying reader when done!
func NewObsDecoder(r io.Reader) (Decoder, error) {
	br := bufio.NewReader(r)
	first, err := br.ReadString('\n')
	if err != nil && first == "" {
		if err == io.EOF {
			return nil, ErrNoHeader
		}
		return nil, err
	}

	version, _, err := parseVersionRecord(strings.TrimRight(first, "\r\n"))
	if err != nil {
		return nil, err
	}

	// The version record is part of the header, hand it back to the decoder.
	in := io.MultiReader(strings.NewReader(first), br)
	switch {
	case version >= 2 && version < 3:
		return NewObsDecoderV2(in)
	case version >= 3 && version < 4:
		return NewObsDecoderV3(in)
	}
	return nil, fmt.Errorf("%w: version %.2f", ErrUnsupportedFormat, version)
}

// parseVersionRecord decodes the RINEX VERSION / TYPE record, the mandatory
// first record of every RINEX file.
func parseVersionRecord(line string) (version float32, typ string, err error) {
	if !strings.Contains(line, "RINEX VERS") {
		return 0, "", ErrNoHeader
	}
	if len(line) < 21 {
		return 0, "", &HeaderError{Line: 1, Label: "RINEX VERSION / TYPE", Err: fmt.Errorf("record too short: %q", line)}
	}
	f64, err := strconv.ParseFloat(strings.TrimSpace(line[:9]), 32)
	if err != nil {
		return 0, "", &HeaderError{Line: 1, Label: "RINEX VERSION / TYPE", Err: fmt.Errorf("parse version: %v", err)}
	}
	return float32(f64), strings.TrimSpace(line[20:21]), nil
}

// readVersionRecord reads the first line of r and decodes the version record.
func readVersionRecord(r io.Reader) (version float32, typ string, err error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return 0, "", err
		}
		return 0, "", ErrNoHeader
	}
	return parseVersionRecord(sc.Text())
}

// ObsStats holds observation statistics of a scanned file.
type ObsStats struct {
	NumEpochs      int            `json:"numEpochs"`      // The number of epochs in the file.
	NumRows        int            `json:"numRows"`        // The number of rows of the flat observation table.
	Sats           map[string]int `json:"sats"`           // The number of rows per satellite.
	Systems        map[string]int `json:"systems"`        // The number of rows per satellite system.
	TimeOfFirstObs time.Time      `json:"timeOfFirstObs"` // Time of the first observation.
	TimeOfLastObs  time.Time      `json:"timeOfLastObs"`  // Time of the last observation.
}

// ObsFile reads a RINEX observation file as a structured header and a flat
// observation table. The header is decoded on open, the data records on the
// first call to Observations and cached afterwards.
type ObsFile struct {
	Path   string
	Header *ObsHeader

	obs     []Observation
	stats   *ObsStats
	scanned bool
}

// OpenObs opens the RINEX observation file at path and decodes its header.
func OpenObs(path string) (*ObsFile, error) {
	f := &ObsFile{Path: path}

	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	dec, err := NewObsDecoder(r)
	if err != nil {
		return nil, err
	}
	f.Header = dec.ObsHeader()
	if err := f.Header.Validate(); err != nil {
		return nil, fmt.Errorf("validate header of %s: %w", path, err)
	}
	return f, nil
}

// Metadata returns the header with a complete observation-type table. For
// RINEX-2 files the per-system table is known only after the data records have
// been scanned, so the first call may read the whole file.
func (f *ObsFile) Metadata() (*ObsHeader, error) {
	if f.Header.AllObsTypes != nil && !f.scanned {
		if _, err := f.Observations(); err != nil {
			return nil, err
		}
	}
	return f.Header, nil
}

// Observations decodes all data records of the file into the flat observation
// table. The table is cached, subsequent calls do not re-read the file.
func (f *ObsFile) Observations() ([]Observation, error) {
	if f.scanned {
		return f.obs, nil
	}

	r, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	dec, err := NewObsDecoder(r)
	if err != nil {
		return nil, err
	}

	stats := &ObsStats{Sats: map[string]int{}, Systems: map[string]int{}}
	var rows []Observation
	for dec.NextEpoch() {
		epo := dec.Epoch()
		stats.NumEpochs++
		if stats.TimeOfFirstObs.IsZero() {
			stats.TimeOfFirstObs = epo.Time
		}
		stats.TimeOfLastObs = epo.Time

		mark := len(rows)
		rows = flattenEpoch(rows, epo, dec.ObsHeader().ObsTypes)
		for _, row := range rows[mark:] {
			stats.Sats[row.Sat]++
			stats.Systems[row.Constellation]++
		}
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}
	stats.NumRows = len(rows)

	f.Header = dec.ObsHeader() // RINEX-2: the obs-type table grows during the scan
	f.obs = rows
	f.stats = stats
	f.scanned = true
	return f.obs, nil
}

// Stats returns observation statistics, scanning the file if necessary.
func (f *ObsFile) Stats() (*ObsStats, error) {
	if _, err := f.Observations(); err != nil {
		return nil, err
	}
	return f.stats, nil
}

// compile-time interface checks
var (
	_ Decoder = (*ObsDecoderV2)(nil)
	_ Decoder = (*ObsDecoderV3)(nil)
)
