package models

// ExperimentTypeQTLCandidateGenes is the mld_expts.expttype label for curated QTL candidate gene text.
const ExperimentTypeQTLCandidateGenes = "TEXT-QTL-Candidate Genes"

// ExperimentMarker is one marker attached to a mapping experiment, carrying the experiment's
// supporting reference (mld_expt_marker_view joined to mld_expt_view).
type ExperimentMarker struct {
	ExperimentKey  int    `db:"expt_key"`
	ExperimentType string `db:"expt_type"`
	MarkerKey      int    `db:"marker_key"`
	MarkerSymbol   string `db:"symbol"`
	RefsKey        int    `db:"refs_key"`
	JNumID         string `db:"jnumid"`
}
