package gnss

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystems_MarshalJSON(t *testing.T) {
	systems := Systems{SysGAL, SysBDS}
	sysJSON, err := json.Marshal(systems)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "[\"E\",\"C\"]", string(sysJSON), "marshall gnss")
}

func TestParseSystem(t *testing.T) {
	assert := assert.New(t)
	tests := map[string]System{
		"G": SysGPS, "R": SysGLO, "E": SysGAL, "C": SysBDS,
		"J": SysQZSS, "S": SysSBAS, "I": SysIRNSS, "M": SysMIXED,
	}
	for abbr, want := range tests {
		sys, err := ParseSystem(abbr)
		assert.NoError(err)
		assert.Equal(want, sys, abbr)
		assert.Equal(abbr, sys.Abbr())
	}

	_, err := ParseSystem("X")
	assert.Error(err, "unknown constellation code")
}
