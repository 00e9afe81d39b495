package models

// MarkerTypeKey is mrk_types._marker_type_key.
type MarkerTypeKey int

const (
	MarkerTypeGene                 MarkerTypeKey = 1
	MarkerTypeQTL                  MarkerTypeKey = 6
	MarkerTypePseudogene           MarkerTypeKey = 7
	MarkerTypeOtherGenomeFeature   MarkerTypeKey = 9
	MarkerTypeComplexClusterRegion MarkerTypeKey = 10
)

// MarkerStatusOfficial is the active/official mrk_marker._marker_status_key.
const MarkerStatusOfficial = 1

// CandidateMarkerTypes are the marker types that may be proposed as a QTL candidate gene.
var CandidateMarkerTypes = []MarkerTypeKey{
	MarkerTypeGene,
	MarkerTypePseudogene,
	MarkerTypeOtherGenomeFeature,
	MarkerTypeComplexClusterRegion,
}

// Marker is a row of mrk_marker joined to its type name.
type Marker struct {
	Key       int           `db:"marker_key"`
	Symbol    string        `db:"symbol"`
	TypeKey   MarkerTypeKey `db:"marker_type_key"`
	TypeName  string        `db:"marker_type"`
	StatusKey int           `db:"marker_status_key"`
}

func (m Marker) IsActive() bool {
	return m.StatusKey == MarkerStatusOfficial
}

func (m Marker) IsQTL() bool {
	return m.TypeKey == MarkerTypeQTL
}
