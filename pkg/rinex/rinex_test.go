package rinex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsObsFileName(t *testing.T) {
	assert := assert.New(t)

	// RINEX-3 long names
	assert.True(IsObsFileName("BRUX00BEL_R_20210470000_01D_30S_MO.rnx"))
	assert.True(IsObsFileName("BRUX00BEL_R_20210470000_01D_30S_MO.crx.gz"))
	assert.False(IsObsFileName("BRUX00BEL_R_20210470000_01D_MN.rnx"), "navigation file")

	// RINEX-2 short names
	assert.True(IsObsFileName("gope2450.99o"))
	assert.True(IsObsFileName("gope2450.99o.Z"))
	assert.True(IsObsFileName("gope2450.99d"), "Hatanaka compressed obs")
	assert.False(IsObsFileName("gope2450.99n"), "navigation file")

	// plain extensions
	assert.True(IsObsFileName("/data/some/path/station1.obs"))
	assert.False(IsObsFileName("notes.txt"))
}

func TestParseVersionRecord(t *testing.T) {
	assert := assert.New(t)

	version, typ, err := parseVersionRecord("     3.04           OBSERVATION DATA    M                   RINEX VERSION / TYPE")
	assert.NoError(err)
	assert.Equal(float32(3.04), version)
	assert.Equal("O", typ)

	version, typ, err = parseVersionRecord("     2.11           OBSERVATION DATA    G (GPS)             RINEX VERSION / TYPE")
	assert.NoError(err)
	assert.Equal(float32(2.11), version)
	assert.Equal("O", typ)

	_, _, err = parseVersionRecord("hello world")
	assert.ErrorIs(err, ErrNoHeader)
}

func TestParseHeaderDate(t *testing.T) {
	tests := map[string]time.Time{
		"20210217 001127 UTC": time.Date(2021, 2, 17, 0, 11, 27, 0, time.UTC),
		"02-Feb-21 00:11":     time.Date(2021, 2, 2, 0, 11, 0, 0, time.UTC),
	}
	for date, wanted := range tests {
		got, err := parseHeaderDate(date)
		if assert.NoError(t, err, date) {
			assert.True(t, wanted.Equal(got), "%s: %s != %s", date, wanted, got)
		}
	}
}
