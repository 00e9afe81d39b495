package inference

import (
	"sort"

	"github.com/Ramsey-B/qtlcandidateload/pkg/models"
)

// TypeSet is a set of marker types.
type TypeSet map[models.MarkerTypeKey]struct{}

func NewTypeSet(types ...models.MarkerTypeKey) TypeSet {
	set := make(TypeSet, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}

func (s TypeSet) Contains(t models.MarkerTypeKey) bool {
	_, ok := s[t]
	return ok
}

// Keys returns the members in ascending order.
func (s TypeSet) Keys() []models.MarkerTypeKey {
	keys := make([]models.MarkerTypeKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// SelectQTLs is stage one: the distinct active QTL markers.
func SelectQTLs(markers []models.Marker) []models.QTL {
	seen := make(map[models.QTL]struct{}, len(markers))
	out := make([]models.QTL, 0, len(markers))
	for _, m := range markers {
		if !m.IsQTL() || !m.IsActive() {
			continue
		}
		qtl := models.QTL{Key: m.Key, Symbol: m.Symbol}
		if _, ok := seen[qtl]; ok {
			continue
		}
		seen[qtl] = struct{}{}
		out = append(out, qtl)
	}
	return out
}

// LinkExperiments is stage two: pairs each QTL with the experiments of experimentType that name it.
func LinkExperiments(qtls []models.QTL, rows []models.ExperimentMarker, experimentType string) []models.QTLExperiment {
	byKey := make(map[int][]models.QTL, len(qtls))
	for _, q := range qtls {
		byKey[q.Key] = append(byKey[q.Key], q)
	}

	seen := make(map[models.QTLExperiment]struct{})
	var out []models.QTLExperiment
	for _, row := range rows {
		if row.ExperimentType != experimentType {
			continue
		}
		for _, q := range byKey[row.MarkerKey] {
			link := models.QTLExperiment{QTL: q, ExperimentKey: row.ExperimentKey}
			if _, ok := seen[link]; ok {
				continue
			}
			seen[link] = struct{}{}
			out = append(out, link)
		}
	}
	return out
}

// ExtractCandidates is stage three: every marker attached to a linked experiment, with the
// experiment's reference. Marker types are not considered here, so the QTL itself appears as
// one of its own candidates until stage four removes it.
func ExtractCandidates(links []models.QTLExperiment, rows []models.ExperimentMarker) []models.CandidateLink {
	byExperiment := make(map[int][]models.ExperimentMarker)
	for _, row := range rows {
		byExperiment[row.ExperimentKey] = append(byExperiment[row.ExperimentKey], row)
	}

	seen := make(map[models.CandidateLink]struct{})
	var out []models.CandidateLink
	for _, link := range links {
		for _, row := range byExperiment[link.ExperimentKey] {
			candidate := models.CandidateLink{
				QTL:           link.QTL,
				ExperimentKey: link.ExperimentKey,
				MarkerKey:     row.MarkerKey,
				MarkerSymbol:  row.MarkerSymbol,
				RefsKey:       row.RefsKey,
				JNumID:        row.JNumID,
			}
			if _, ok := seen[candidate]; ok {
				continue
			}
			seen[candidate] = struct{}{}
			out = append(out, candidate)
		}
	}
	return out
}

// EligibleMarkers is the stage four lookup: active markers whose type is in types, by key.
func EligibleMarkers(markers []models.Marker, types TypeSet) map[int]models.Marker {
	out := make(map[int]models.Marker, len(markers))
	for _, m := range markers {
		if !m.IsActive() || !types.Contains(m.TypeKey) {
			continue
		}
		out[m.Key] = m
	}
	return out
}

type candidateKey struct {
	qtlKey  int
	geneKey int
	refsKey int
}

// FilterByType is stage four: keeps links whose marker is eligible. The result holds one
// candidate per (QTL, gene, reference); when several experiments cite the same reference the
// lowest experiment key is kept. Output is ordered by QTL, gene, then reference.
func FilterByType(links []models.CandidateLink, eligible map[int]models.Marker) []models.Candidate {
	index := make(map[candidateKey]int)
	var out []models.Candidate
	for _, link := range links {
		gene, ok := eligible[link.MarkerKey]
		if !ok {
			continue
		}
		key := candidateKey{qtlKey: link.QTL.Key, geneKey: gene.Key, refsKey: link.RefsKey}
		if i, ok := index[key]; ok {
			if link.ExperimentKey < out[i].ExperimentKey {
				out[i].ExperimentKey = link.ExperimentKey
				out[i].JNumID = link.JNumID
			}
			continue
		}
		index[key] = len(out)
		out = append(out, models.Candidate{
			QTL:           link.QTL,
			ExperimentKey: link.ExperimentKey,
			Gene:          gene,
			RefsKey:       link.RefsKey,
			JNumID:        link.JNumID,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.QTL.Key != b.QTL.Key {
			return a.QTL.Key < b.QTL.Key
		}
		if a.Gene.Key != b.Gene.Key {
			return a.Gene.Key < b.Gene.Key
		}
		return a.RefsKey < b.RefsKey
	})
	return out
}
