package rinex

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gnsslab/gorinex/pkg/gnss"
)

func TestDecodeObs(t *testing.T) {
	assert := assert.New(t)

	// blank value is null
	obs, err := decodeObs("                ", 0)
	assert.NoError(err)
	assert.Nil(obs.Val)

	// a stored zero is a value, distinguishable from blank
	obs, err = decodeObs("         0.000  ", 0)
	assert.NoError(err)
	if assert.NotNil(obs.Val) {
		assert.Equal(0.0, *obs.Val)
	}

	// packed indicator sub-columns
	obs, err = decodeObs(" 110935096.81617", 0)
	assert.NoError(err)
	assert.Equal(110935096.816, *obs.Val)
	assert.Equal(int8(1), obs.LLI)
	assert.Equal(int8(7), obs.SNR)

	// epoch flag 1 sets the power-failure bit
	obs, err = decodeObs("  21110991.756  ", 1)
	assert.NoError(err)
	assert.Equal(int8(1), obs.LLI)

	// short field, indicators missing
	obs, err = decodeObs("  21110991.756", 0)
	assert.NoError(err)
	assert.Equal(21110991.756, *obs.Val)
	assert.Equal(int8(0), obs.LLI)

	_, err = decodeObs("    no number   ", 0)
	assert.Error(err)
}

func TestObsChannel(t *testing.T) {
	tests := map[ObsCode]struct {
		kind    byte
		channel string
	}{
		"L1C": {'L', "1C"},
		"C1C": {'C', "1C"},
		"S5Q": {'S', "5Q"},
		"C1":  {'C', "1"},
		"D2":  {'D', "2"},
		"P2":  {'C', "2P"},
	}
	for code, wanted := range tests {
		kind, channel := obsChannel(code)
		assert.Equal(t, wanted.kind, kind, string(code))
		assert.Equal(t, wanted.channel, channel, string(code))
	}
}

func TestNewPRN(t *testing.T) {
	assert := assert.New(t)

	prn, err := newPRN("G07")
	assert.NoError(err)
	assert.Equal(PRN{Sys: gnss.SysGPS, Num: 7}, prn)
	assert.Equal("G07", prn.String())

	// blank system char means GPS, the id is normalized on output
	prn, err = newPRN(" 12")
	assert.NoError(err)
	assert.Equal(PRN{Sys: gnss.SysGPS, Num: 12}, prn)
	assert.Equal("G12", prn.String())

	_, err = newPRN("X07")
	assert.Error(err)
	_, err = newPRN("G00")
	assert.Error(err)
}
