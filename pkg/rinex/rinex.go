// Package rinex decodes RINEX observation files, version 2 and version 3,
// into a structured header and a flat observation table.
// See the RINEX format documentation at https://igs.org/formats-and-standards/
package rinex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// epochTimeFormat is the time format for the epoch-time in RINEX-3 files.
	epochTimeFormat string = "2006  1  2 15  4  5.0000000"

	// headerDateFormat is the Date/Time format in the PGM / RUN BY / DATE header record.
	headerDateFormat string = "20060102 150405"

	// headerDateWithZoneFormat is the Date/Time format with a 3-4 character
	// time zone code in the PGM / RUN BY / DATE header record.
	headerDateWithZoneFormat string = "20060102 150405 MST"

	// headerDateFormatv2 is the RINEX-2 Date/Time format in the PGM / RUN BY / DATE header record.
	headerDateFormatv2 string = "02-Jan-06 15:04"
)

// errors
var (
	// ErrNoHeader is returned when reading RINEX data that does not begin with a RINEX header.
	ErrNoHeader = errors.New("rinex: no header")

	// ErrUnsupportedFormat is returned when the version or the file type of the
	// input does not match the decoder's dialect.
	ErrUnsupportedFormat = errors.New("rinex: unsupported format")
)

// A HeaderError reports a malformed or missing required header record.
type HeaderError struct {
	Line  int    // line number in the source
	Label string // the header label concerned, if known
	Err   error
}

func (e *HeaderError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("rinex: header line %d: %q: %v", e.Line, e.Label, e.Err)
	}
	return fmt.Sprintf("rinex: header line %d: %v", e.Line, e.Err)
}

func (e *HeaderError) Unwrap() error { return e.Err }

// An ObsError reports a malformed epoch or satellite record. Epoch and PRN
// are set as far as they were decoded.
type ObsError struct {
	Line  int       // line number in the source
	Epoch time.Time // the epoch being decoded
	PRN   string    // the satellite being decoded, e.g. "G01"
	Err   error
}

func (e *ObsError) Error() string {
	msg := fmt.Sprintf("rinex: obs line %d", e.Line)
	if !e.Epoch.IsZero() {
		msg += fmt.Sprintf(" epoch %s", e.Epoch.Format(time.RFC3339))
	}
	if e.PRN != "" {
		msg += " sat " + e.PRN
	}
	return msg + ": " + e.Err.Error()
}

func (e *ObsError) Unwrap() error { return e.Err }

var (
	// Rnx2FileNamePattern is the regex for RINEX-2 filenames.
	Rnx2FileNamePattern = regexp.MustCompile(`(([a-z0-9]{4})(\d{3})([a-x0])(\d{2})?\.(\d{2})([domnglqfph]))\.?([a-zA-Z0-9]+)?`)

	// Rnx3FileNamePattern is the regex for RINEX-3 filenames.
	Rnx3FileNamePattern = regexp.MustCompile(`((([A-Z0-9]{4})(\d)(\d)([A-Z]{3})_([RSU])_((\d{4})(\d{3})(\d{2})(\d{2}))_(\d{2}[A-Z])_?(\d{2}[CZSMHDU])?_([GREJCSM][MNO]))\.(rnx|crx))\.?([a-zA-Z0-9]+)?`)
)

// IsObsFileName reports whether name looks like a RINEX observation file:
// the RINEX-3 long-name convention or a .rnx/.crx/.obs suffix, or the RINEX-2
// short-name convention with a two-digit-year observation suffix like .20o.
func IsObsFileName(name string) bool {
	name = filepath.Base(name)
	if m := Rnx3FileNamePattern.FindStringSubmatch(name); m != nil {
		return strings.HasSuffix(m[15], "O")
	}
	if m := Rnx2FileNamePattern.FindStringSubmatch(name); m != nil {
		return m[7] == "o" || m[7] == "d"
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".rnx", ".crx", ".obs", ".o":
		return true
	}
	return false
}

// DetectFile probes the file to determine whether it is a RINEX observation
// file and returns the format version from the version record.
func DetectFile(path string) (version float32, err error) {
	r, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	version, typ, err := readVersionRecord(r)
	if err != nil {
		return 0, err
	}
	if typ != "O" {
		return 0, fmt.Errorf("%w: file type %q", ErrUnsupportedFormat, typ)
	}
	return version, nil
}

// FindObsFiles walks the directory tree rooted at dir and returns the paths of
// all RINEX observation files, identified by filename convention and verified
// by their version record.
func FindObsFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsObsFileName(path) {
			return nil
		}
		if _, err := DetectFile(path); err == nil {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Parse the Date/Time in the PGM / RUN BY / DATE header record.
// It is recommended to use UTC as the time zone. Set zone to LCL if an unknown local time was used.
func parseHeaderDate(date string) (time.Time, error) {
	format := headerDateFormat
	if len(date) == 19 || len(date) == 20 {
		format = headerDateWithZoneFormat
	} else if len(date) == 15 && strings.Contains(date, "-") {
		format = headerDateFormatv2
	} else if len(date) == 18 && strings.Contains(date, "-") {
		format = "02-Jan-06 15:04:05" // unofficial!
	} else if len(date) == 17 && strings.Contains(date, "-") {
		format = "02-Jan-2006 15:04" // unofficial!
	} else if len(date) == 16 && strings.Contains(date, "-") {
		format = "2006-01-02 15:04" // unofficial!
	}

	ti, err := time.Parse(format, date)
	if err != nil {
		return time.Time{}, err
	}
	return ti, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
