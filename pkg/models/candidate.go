package models

// QTL is a stage one result: an active QTL marker.
type QTL struct {
	Key    int
	Symbol string
}

// QTLExperiment is a stage two result: a QTL named in a candidate-gene mapping experiment.
type QTLExperiment struct {
	QTL           QTL
	ExperimentKey int
}

// CandidateLink is a stage three result: any marker co-mapped with the QTL in the experiment,
// before type filtering.
type CandidateLink struct {
	QTL           QTL
	ExperimentKey int
	MarkerKey     int
	MarkerSymbol  string
	RefsKey       int
	JNumID        string
}

// Candidate is a stage four result: a QTL and an eligible candidate gene supported by a reference.
type Candidate struct {
	QTL           QTL
	ExperimentKey int
	Gene          Marker
	RefsKey       int
	JNumID        string
}
