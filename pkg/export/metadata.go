package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/gnsslab/gorinex/pkg/rinex"
)

// allTypesKey is the observation-type table key for the global RINEX-2 list.
const allTypesKey = "ALL"

// Metadata is the serializable header document of an observation file.
type Metadata struct {
	RINEXVersion    float32             `json:"rinexVersion" validate:"required"`
	RINEXType       string              `json:"rinexType" validate:"required"`
	StationName     string              `json:"stationName"`
	MarkerNumber    string              `json:"markerNumber,omitempty"`
	Observer        string              `json:"observer,omitempty"`
	Agency          string              `json:"agency,omitempty"`
	ReceiverNumber  string              `json:"receiverNumber,omitempty"`
	ReceiverType    string              `json:"receiverType,omitempty"`
	ReceiverVersion string              `json:"receiverVersion,omitempty"`
	AntennaNumber   string              `json:"antennaNumber,omitempty"`
	AntennaType     string              `json:"antennaType,omitempty"`
	ApproxPos       [3]float64          `json:"approxPos"`
	AntennaDelta    [3]float64          `json:"antennaDelta"` // H, E, N
	ObsTypes        map[string][]string `json:"observationTypes" validate:"required"`
	TimeOfFirstObs  *time.Time          `json:"timeOfFirstObs,omitempty"`
	TimeOfLastObs   *time.Time          `json:"timeOfLastObs,omitempty"`
	Interval        *float64            `json:"interval,omitempty"`
	LeapSeconds     *int                `json:"leapSeconds,omitempty"`
}

// NewMetadata builds the metadata document from a decoded header. The
// observation-type table is keyed by the single-char constellation codes,
// the global RINEX-2 list appears under "ALL".
func NewMetadata(hdr *rinex.ObsHeader) *Metadata {
	meta := &Metadata{
		RINEXVersion:    hdr.RINEXVersion,
		RINEXType:       hdr.RINEXType,
		StationName:     hdr.MarkerName,
		MarkerNumber:    hdr.MarkerNumber,
		Observer:        hdr.Observer,
		Agency:          hdr.Agency,
		ReceiverNumber:  hdr.ReceiverNumber,
		ReceiverType:    hdr.ReceiverType,
		ReceiverVersion: hdr.ReceiverVersion,
		AntennaNumber:   hdr.AntennaNumber,
		AntennaType:     hdr.AntennaType,
		ApproxPos:       [3]float64{hdr.Position.X, hdr.Position.Y, hdr.Position.Z},
		AntennaDelta:    [3]float64{hdr.AntennaDelta.Up, hdr.AntennaDelta.E, hdr.AntennaDelta.N},
		ObsTypes:        map[string][]string{},
		Interval:        hdr.Interval,
		LeapSeconds:     hdr.LeapSeconds,
	}

	for sys, codes := range hdr.ObsTypes {
		meta.ObsTypes[sys.Abbr()] = obsCodeStrings(codes)
	}
	if hdr.AllObsTypes != nil {
		meta.ObsTypes[allTypesKey] = obsCodeStrings(hdr.AllObsTypes)
	}

	if !hdr.TimeOfFirstObs.IsZero() {
		t := hdr.TimeOfFirstObs
		meta.TimeOfFirstObs = &t
	}
	if !hdr.TimeOfLastObs.IsZero() {
		t := hdr.TimeOfLastObs
		meta.TimeOfLastObs = &t
	}
	return meta
}

func obsCodeStrings(codes []rinex.ObsCode) []string {
	strs := make([]string, len(codes))
	for i, code := range codes {
		strs[i] = string(code)
	}
	return strs
}

var validate = validator.New()

// Validate checks the document for the fields every metadata file must carry.
func (meta *Metadata) Validate() error {
	return validate.Struct(meta)
}

// Save writes the document as indented JSON, creating the output directory if
// necessary.
func (meta *Metadata) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create output dir")
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode metadata")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "write metadata %s", path)
	}
	return nil
}

// LoadMetadata reads a metadata document written by Save.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read metadata %s", path)
	}
	meta := &Metadata{}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, errors.Wrapf(err, "decode metadata %s", path)
	}
	return meta, nil
}

// A Difference holds the two conflicting values of one metadata field.
type Difference struct {
	A, B any
}

// Compare returns the fields on which the two documents disagree, keyed by
// the JSON field name. The observation-type tables are compared per
// constellation under keys like "observationTypes.G".
func Compare(a, b *Metadata) map[string]Difference {
	diffs := map[string]Difference{}

	cmp := func(key string, va, vb any) {
		if va != vb {
			diffs[key] = Difference{A: va, B: vb}
		}
	}
	cmp("rinexVersion", a.RINEXVersion, b.RINEXVersion)
	cmp("rinexType", a.RINEXType, b.RINEXType)
	cmp("stationName", a.StationName, b.StationName)
	cmp("markerNumber", a.MarkerNumber, b.MarkerNumber)
	cmp("observer", a.Observer, b.Observer)
	cmp("agency", a.Agency, b.Agency)
	cmp("receiverNumber", a.ReceiverNumber, b.ReceiverNumber)
	cmp("receiverType", a.ReceiverType, b.ReceiverType)
	cmp("receiverVersion", a.ReceiverVersion, b.ReceiverVersion)
	cmp("antennaNumber", a.AntennaNumber, b.AntennaNumber)
	cmp("antennaType", a.AntennaType, b.AntennaType)
	cmp("approxPos", a.ApproxPos, b.ApproxPos)
	cmp("antennaDelta", a.AntennaDelta, b.AntennaDelta)

	for _, key := range unionKeys(a.ObsTypes, b.ObsTypes) {
		ta, oka := a.ObsTypes[key]
		tb, okb := b.ObsTypes[key]
		switch {
		case !oka:
			diffs["observationTypes."+key] = Difference{A: nil, B: tb}
		case !okb:
			diffs["observationTypes."+key] = Difference{A: ta, B: nil}
		case !equalStrings(ta, tb):
			diffs["observationTypes."+key] = Difference{A: ta, B: tb}
		}
	}
	return diffs
}

func unionKeys(a, b map[string][]string) []string {
	set := map[string]struct{}{}
	for key := range a {
		set[key] = struct{}{}
	}
	for key := range b {
		set[key] = struct{}{}
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
