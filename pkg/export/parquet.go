// Package export persists decoded RINEX observations: the flat observation
// table as parquet, the header as a JSON metadata document, and a plain-text
// summary.
package export

import (
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"

	"github.com/gnsslab/gorinex/pkg/rinex"
)

// ObsRow is the parquet schema of one observation-table row. The measurement
// columns are optional, a nil pointer writes a parquet null.
type ObsRow struct {
	Date          time.Time `parquet:"date,timestamp(millisecond)"`
	EpochSec      float64   `parquet:"epoch_sec"`
	MJD           float64   `parquet:"mjd"`
	Constellation string    `parquet:"constellation,dict"`
	Sat           string    `parquet:"sat,dict"`
	Channel       string    `parquet:"channel,dict"`
	Range         *float64  `parquet:"range"`
	Phase         *float64  `parquet:"phase"`
	Doppler       *float64  `parquet:"doppler"`
	SNR           *float64  `parquet:"snr"`
}

func newObsRow(obs rinex.Observation) ObsRow {
	return ObsRow{
		Date:          obs.Date,
		EpochSec:      obs.EpochSec,
		MJD:           obs.MJD,
		Constellation: obs.Constellation,
		Sat:           obs.Sat,
		Channel:       obs.Channel,
		Range:         obs.Range,
		Phase:         obs.Phase,
		Doppler:       obs.Doppler,
		SNR:           obs.SNR,
	}
}

// WriteParquet writes the observation table to a parquet file, creating the
// output directory if necessary.
func WriteParquet(path string, obs []rinex.Observation) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create output dir")
	}

	rows := make([]ObsRow, len(obs))
	for i, o := range obs {
		rows[i] = newObsRow(o)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return errors.Wrapf(err, "write parquet %s", path)
	}
	return nil
}

// ReadParquet reads an observation table written by WriteParquet.
func ReadParquet(path string) ([]rinex.Observation, error) {
	rows, err := parquet.ReadFile[ObsRow](path)
	if err != nil {
		return nil, errors.Wrapf(err, "read parquet %s", path)
	}

	obs := make([]rinex.Observation, len(rows))
	for i, r := range rows {
		obs[i] = rinex.Observation{
			Date:          r.Date.UTC(),
			EpochSec:      r.EpochSec,
			MJD:           r.MJD,
			Constellation: r.Constellation,
			Sat:           r.Sat,
			Channel:       r.Channel,
			Range:         r.Range,
			Phase:         r.Phase,
			Doppler:       r.Doppler,
			SNR:           r.SNR,
		}
	}
	return obs, nil
}
