package models

import "time"

// RelationshipTable is the target table of the bulk load.
const RelationshipTable = "MGI_Relationship"

// RelationshipColumns lists mgi_relationship columns in bcp field order.
var RelationshipColumns = []string{
	"_relationship_key",
	"_category_key",
	"_object_key_1",
	"_object_key_2",
	"_relationshipterm_key",
	"_qualifier_key",
	"_evidence_key",
	"_refs_key",
	"_createdby_key",
	"_modifiedby_key",
	"creation_date",
	"modification_date",
}

// RelationshipDefaults are the fixed vocabulary keys stamped on every QTL candidate gene relationship.
// They must match the reference data already present in the store.
type RelationshipDefaults struct {
	CategoryKey         int
	RelationshipTermKey int
	QualifierKey        int
	EvidenceKey         int
	UserKey             int
}

// QTLCandidateGeneDefaults: category "qtl_to_candidate_gene", term "Candidate Gene",
// qualifier and evidence "Not Specified", user "qtlcandidateload".
var QTLCandidateGeneDefaults = RelationshipDefaults{
	CategoryKey:         1009,
	RelationshipTermKey: 105563920,
	QualifierKey:        11391898,
	EvidenceKey:         17396909,
	UserKey:             1631,
}

// Relationship is one mgi_relationship row.
type Relationship struct {
	Key                 int64
	CategoryKey         int
	ObjectKey1          int
	ObjectKey2          int
	RelationshipTermKey int
	QualifierKey        int
	EvidenceKey         int
	RefsKey             int
	CreatedByKey        int
	ModifiedByKey       int
	CreationDate        time.Time
	ModificationDate    time.Time
}

// NewRelationship builds the row for a derived candidate.
func NewRelationship(key int64, c Candidate, defaults RelationshipDefaults, runDate time.Time) Relationship {
	return Relationship{
		Key:                 key,
		CategoryKey:         defaults.CategoryKey,
		ObjectKey1:          c.QTL.Key,
		ObjectKey2:          c.Gene.Key,
		RelationshipTermKey: defaults.RelationshipTermKey,
		QualifierKey:        defaults.QualifierKey,
		EvidenceKey:         defaults.EvidenceKey,
		RefsKey:             c.RefsKey,
		CreatedByKey:        defaults.UserKey,
		ModifiedByKey:       defaults.UserKey,
		CreationDate:        runDate,
		ModificationDate:    runDate,
	}
}
