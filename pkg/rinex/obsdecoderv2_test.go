package rinex

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gnsslab/gorinex/pkg/gnss"
)

func TestObsDecoderV2_readHeader(t *testing.T) {
	const header = `     2.11           OBSERVATION DATA    G (GPS)             RINEX VERSION / TYPE
teqc  2019Feb25                         20210216 00:01:11UTCPGM / RUN BY / DATE
GOPE                                                        MARKER NAME
11502M002                                                   MARKER NUMBER
GOPE                GOP RIGTC                               OBSERVER / AGENCY
5021K69451          TRIMBLE NETR9       5.45                REC # / TYPE / VERS
1441112501          TRM59800.00     NONE                    ANT # / TYPE
  3979316.4389  1050312.2534  4857066.9036                  APPROX POSITION XYZ
        0.1110        0.0000        0.0000                  ANTENNA: DELTA H/E/N
     1     1                                                WAVELENGTH FACT L1/2
     1     2     2   G14   G15                              WAVELENGTH FACT L1/2
    10    C1    P1    P2    L1    L2    D1    D2    S1    S2# / TYPES OF OBSERV
          C2                                                # / TYPES OF OBSERV
    30.0000                                                 INTERVAL
  1999     9     2     0     0     0.0000000     GPS        TIME OF FIRST OBS
    13                                                      LEAP SECONDS
                                                            END OF HEADER
`

	assert := assert.New(t)
	dec, err := NewObsDecoderV2(strings.NewReader(header))
	assert.NoError(err)
	assert.NotNil(dec)

	hdr := dec.Header
	assert.Equal(float32(2.11), hdr.RINEXVersion, "RINEX Version")
	assert.Equal("O", hdr.RINEXType, "RINEX Type")
	assert.Equal(gnss.SysGPS, hdr.SatSystem, "Satellite System")
	assert.Equal("GOPE", hdr.MarkerName, "Markername")
	assert.Equal("5021K69451", hdr.ReceiverNumber)
	assert.Equal("TRIMBLE NETR9", hdr.ReceiverType)
	assert.Equal(Coord{X: 3979316.4389, Y: 1050312.2534, Z: 4857066.9036}, hdr.Position)
	assert.Equal(time.Date(1999, 9, 2, 0, 0, 0, 0, time.UTC), hdr.TimeOfFirstObs, "TimeOfFirstObs")
	if assert.NotNil(hdr.LeapSeconds) {
		assert.Equal(13, *hdr.LeapSeconds)
	}

	// the global type list is reassembled across continuation lines
	wanted := []ObsCode{"C1", "P1", "P2", "L1", "L2", "D1", "D2", "S1", "S2", "C2"}
	assert.Equal(wanted, hdr.AllObsTypes, "global obs types")
	assert.Empty(hdr.ObsTypes, "per-system table is filled during the data scan")

	if assert.Len(hdr.WavelengthFacts, 2) {
		global := hdr.WavelengthFacts[0]
		assert.Equal(1, global.L1)
		assert.Equal(1, global.L2)
		assert.Empty(global.Sats, "applies to all satellites")

		squared := hdr.WavelengthFacts[1]
		assert.Equal(1, squared.L1)
		assert.Equal(2, squared.L2)
		assert.Equal([]PRN{{Sys: gnss.SysGPS, Num: 14}, {Sys: gnss.SysGPS, Num: 15}}, squared.Sats)
	}

	// last applicable record in file order wins
	fact, found := hdr.WavelengthFactFor(PRN{Sys: gnss.SysGPS, Num: 14})
	assert.True(found)
	assert.Equal(2, fact.L2, "G14 is squaring on L2")
	fact, found = hdr.WavelengthFactFor(PRN{Sys: gnss.SysGPS, Num: 1})
	assert.True(found)
	assert.Equal(1, fact.L2, "G01 falls back to the global record")
}

func TestObsDecoderV2_readHeaderBlankSatSystem(t *testing.T) {
	const header = `     2.10           OBSERVATION DATA                        RINEX VERSION / TYPE
     4    C1    L1    L2    P2                              # / TYPES OF OBSERV
                                                            END OF HEADER
`

	assert := assert.New(t)
	dec, err := NewObsDecoderV2(strings.NewReader(header))
	assert.NoError(err)
	assert.Equal(gnss.SysGPS, dec.Header.SatSystem, "blank satellite system means GPS")
}

func TestObsDecoderV2_readHeaderSingleFrequency(t *testing.T) {
	// single-frequency receivers leave the L2 factor blank
	const header = `     2.11           OBSERVATION DATA    G (GPS)             RINEX VERSION / TYPE
     1                                                      WAVELENGTH FACT L1/2
     2    C1    L1                                          # / TYPES OF OBSERV
                                                            END OF HEADER
`

	assert := assert.New(t)
	dec, err := NewObsDecoderV2(strings.NewReader(header))
	assert.NoError(err)
	if assert.Len(dec.Header.WavelengthFacts, 1) {
		fact := dec.Header.WavelengthFacts[0]
		assert.Equal(1, fact.L1)
		assert.Equal(0, fact.L2, "blank L2 factor reads as zero")
		assert.Empty(fact.Sats, "applies to all satellites")
	}
}

func TestObsDecoderV2_readHeaderErrors(t *testing.T) {
	assert := assert.New(t)

	// RINEX-3 input handed to the RINEX-2 decoder
	_, err := NewObsDecoderV2(strings.NewReader(
		"     3.04           OBSERVATION DATA    M                   RINEX VERSION / TYPE\n"))
	assert.ErrorIs(err, ErrUnsupportedFormat)

	// missing END OF HEADER terminator
	_, err = NewObsDecoderV2(strings.NewReader(
		`     2.11           OBSERVATION DATA    G (GPS)             RINEX VERSION / TYPE
GOPE                                                        MARKER NAME
`))
	var hdrErr *HeaderError
	if assert.ErrorAs(err, &hdrErr) {
		assert.Equal("END OF HEADER", hdrErr.Label)
	}
}

const v2ObsInput = `     2.11           OBSERVATION DATA    M (MIXED)           RINEX VERSION / TYPE
GOPE                                                        MARKER NAME
     4    C1    L1    L2    P2                              # / TYPES OF OBSERV
                                                            END OF HEADER
 99  9  2  0  0  0.0000000  0  2G14R02
  21110991.756   110935096.8161   84965123.572    21110994.405
  23228142.110                    91101638.871    23228146.140
 99  9  2  0  0 30.0000000  0  2G14R02
  21111500.001   110937767.332    84967169.100    21111502.500
  23227100.900   122068852.200    91097554.330    23227104.770
`

func TestObsDecoderV2_NextEpoch(t *testing.T) {
	assert := assert.New(t)
	dec, err := NewObsDecoderV2(strings.NewReader(v2ObsInput))
	assert.NoError(err)

	assert.True(dec.NextEpoch())
	epo := dec.Epoch()
	assert.Equal(time.Date(1999, 9, 2, 0, 0, 0, 0, time.UTC), epo.Time, "two-digit year 99 resolves to 1999")
	assert.Equal(uint8(2), epo.NumSat)
	assert.Len(epo.ObsList, 2)

	g14 := epo.ObsList[0]
	assert.Equal("G14", g14.Prn.String())
	if assert.NotNil(g14.Obss["C1"].Val) {
		assert.Equal(21110991.756, *g14.Obss["C1"].Val)
	}
	assert.Equal(int8(1), g14.Obss["L1"].LLI)

	// blank L1 field of R02 stays nil, a stored zero would be a value
	r02 := epo.ObsList[1]
	assert.Equal("R02", r02.Prn.String())
	assert.Nil(r02.Obss["L1"].Val, "blank field")
	if assert.NotNil(r02.Obss["P2"].Val) {
		assert.Equal(23228146.140, *r02.Obss["P2"].Val)
	}

	// the per-system table is synthesized from the global list per observed system
	assert.Equal(dec.Header.AllObsTypes, dec.Header.ObsTypes[gnss.SysGPS])
	assert.Equal(dec.Header.AllObsTypes, dec.Header.ObsTypes[gnss.SysGLO])
	assert.Len(dec.Header.ObsTypes, 2, "only observed systems appear")

	assert.True(dec.NextEpoch())
	assert.Equal(time.Date(1999, 9, 2, 0, 0, 30, 0, time.UTC), dec.Epoch().Time)
	assert.False(dec.NextEpoch())
	assert.NoError(dec.Err())
}

func TestObsDecoderV2_continuationLines(t *testing.T) {
	// 10 observation types force two data lines per satellite, 13 satellites
	// force two ids lines per epoch record.
	const input = `     2.11           OBSERVATION DATA    G (GPS)             RINEX VERSION / TYPE
    10    C1    P1    P2    L1    L2    D1    D2    S1    S2# / TYPES OF OBSERV
          C2                                                # / TYPES OF OBSERV
                                                            END OF HEADER
 99  9  2  0  0  0.0000000  0 13G01G02G03G04G05G06G07G08G09G10G11G12
                                G13
  20000000.100    20000000.200    20000000.300   105000000.400    82000000.500
      1000.600       -800.700          44.800          41.900    20000001.000
  20100000.100    20100000.200    20100000.300   105100000.400    82100000.500
      1010.600       -810.700          45.800          42.900    20100001.000
  20200000.100    20200000.200    20200000.300   105200000.400    82200000.500
      1020.600       -820.700          46.800          43.900    20200001.000
  20300000.100    20300000.200    20300000.300   105300000.400    82300000.500
      1030.600       -830.700          47.800          44.900    20300001.000
  20400000.100    20400000.200    20400000.300   105400000.400    82400000.500
      1040.600       -840.700          48.800          45.900    20400001.000
  20500000.100    20500000.200    20500000.300   105500000.400    82500000.500
      1050.600       -850.700          49.800          46.900    20500001.000
  20600000.100    20600000.200    20600000.300   105600000.400    82600000.500
      1060.600       -860.700          50.800          47.900    20600001.000
  20700000.100    20700000.200    20700000.300   105700000.400    82700000.500
      1070.600       -870.700          51.800          48.900    20700001.000
  20800000.100    20800000.200    20800000.300   105800000.400    82800000.500
      1080.600       -880.700          52.800          49.900    20800001.000
  20900000.100    20900000.200    20900000.300   105900000.400    82900000.500
      1090.600       -890.700          53.800          50.900    20900001.000
  21000000.100    21000000.200    21000000.300   106000000.400    83000000.500
      1100.600       -900.700          54.800          51.900    21000001.000
  21100000.100    21100000.200    21100000.300   106100000.400    83100000.500
      1110.600       -910.700          55.800          52.900    21100001.000
  21200000.100    21200000.200    21200000.300   106200000.400    83200000.500
      1120.600       -920.700          56.800          53.900    21200001.000
`

	assert := assert.New(t)
	dec, err := NewObsDecoderV2(strings.NewReader(input))
	assert.NoError(err)
	assert.Len(dec.Header.AllObsTypes, 10)

	assert.True(dec.NextEpoch())
	epo := dec.Epoch()
	assert.Len(epo.ObsList, 13)
	assert.Equal("G13", epo.ObsList[12].Prn.String(), "id from the continued satellite list")

	g13 := epo.ObsList[12]
	if assert.NotNil(g13.Obss["C1"].Val) {
		assert.Equal(21200000.100, *g13.Obss["C1"].Val)
	}
	if assert.NotNil(g13.Obss["C2"].Val) {
		assert.Equal(21200001.000, *g13.Obss["C2"].Val, "value from the continued data line")
	}
	assert.False(dec.NextEpoch())
	assert.NoError(dec.Err())
}

func TestObsDecoderV2_specialEvent(t *testing.T) {
	const input = `     2.11           OBSERVATION DATA    G (GPS)             RINEX VERSION / TYPE
     2    C1    L1                                          # / TYPES OF OBSERV
                                                            END OF HEADER
 99  9  2  0  0  0.0000000  4  2
ANTENNA SLEW DETECTED                                       COMMENT
RECEIVER EVENT                                              COMMENT
 99  9  2  0  0 30.0000000  0  1G14
  21110991.756   110935096.816
`

	assert := assert.New(t)
	dec, err := NewObsDecoderV2(strings.NewReader(input))
	assert.NoError(err)

	assert.True(dec.NextEpoch())
	assert.Equal(time.Date(1999, 9, 2, 0, 0, 30, 0, time.UTC), dec.Epoch().Time)
	assert.Len(dec.Epoch().ObsList, 1)
	assert.False(dec.NextEpoch())
	assert.NoError(dec.Err())
}

func TestObsDecoderV2_truncatedEpoch(t *testing.T) {
	const input = `     2.11           OBSERVATION DATA    G (GPS)             RINEX VERSION / TYPE
     2    C1    L1                                          # / TYPES OF OBSERV
                                                            END OF HEADER
 99  9  2  0  0  0.0000000  0  3G14G15G16
  21110991.756   110935096.816
  22551112.332   112034455.771
`

	assert := assert.New(t)
	dec, err := NewObsDecoderV2(strings.NewReader(input))
	assert.NoError(err)

	assert.False(dec.NextEpoch())
	var obsErr *ObsError
	if assert.ErrorAs(dec.Err(), &obsErr) {
		assert.Equal("G16", obsErr.PRN)
		assert.Contains(obsErr.Error(), "declares 3 satellites")
	}
}

func TestObsDecoderV2_flatten(t *testing.T) {
	assert := assert.New(t)
	dec, err := NewObsDecoderV2(strings.NewReader(v2ObsInput))
	assert.NoError(err)

	var rows []Observation
	for dec.NextEpoch() {
		rows = flattenEpoch(rows, dec.Epoch(), dec.Header.ObsTypes)
	}
	assert.NoError(dec.Err())

	// G14: C1+L1 -> channel 1, L2+P2 -> channels 2 and 2P.
	// R02 epoch 1: blank L1 leaves channel 1 with the C1 range only.
	first := rows[0]
	assert.Equal("G14", first.Sat)
	assert.Equal("1", first.Channel)
	if assert.NotNil(first.Range) {
		assert.Equal(21110991.756, *first.Range)
	}
	if assert.NotNil(first.Phase) {
		assert.Equal(110935096.816, *first.Phase)
	}

	var chans []string
	for _, row := range rows[:3] {
		chans = append(chans, row.Channel)
	}
	assert.Equal([]string{"1", "2", "2P"}, chans, "P2 keeps its own channel")

	// MJD of 1999-09-02 is 51423
	assert.InDelta(51423.0, rows[0].MJD, 1e-9)
	assert.Equal(0.0, rows[0].EpochSec)
}
