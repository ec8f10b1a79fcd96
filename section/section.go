// Package section defines the report sections, their dependencies and the
// renderers that turn case data into section payloads.
package section

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ID identifies a report section.
type ID string

// Section identifiers.
const (
	IDCaseInfo     ID = "1"
	IDCover        ID = "CP"
	IDSubject      ID = "2"
	IDSurveillance ID = "3"
	IDSessions     ID = "4"
	IDDocuments    ID = "5"
	IDBilling      ID = "6"
	IDConclusion   ID = "7"
	IDMedia        ID = "8"
	IDCustody      ID = "9"
	IDDisclosure   ID = "DP"
	IDTOC          ID = "TOC"
)

// Sentinel errors for section lookups and ordering.
var (
	ErrUnknownSection  = errors.New("unknown section")
	ErrDependencyCycle = errors.New("section dependency cycle")
)

// Definition describes one section of the report.
type Definition struct {
	ID        ID
	Title     string
	DependsOn []ID
	// Required lists data keys a payload must carry.
	Required []string
}

// definitions is the fixed pipeline in dispatch order.
var definitions = []Definition{
	{ID: IDCaseInfo, Title: "Case Information & Objectives",
		Required: []string{"case_id", "client", "subject", "objectives", "report_type"}},
	{ID: IDCover, Title: "Cover Page", DependsOn: []ID{IDCaseInfo},
		Required: []string{"title", "case_id", "report_date"}},
	{ID: IDSubject, Title: "Pre-Surveillance & Subject Identification", DependsOn: []ID{IDCaseInfo},
		Required: []string{"subject", "identity"}},
	{ID: IDSurveillance, Title: "Investigation Details / Surveillance Log", DependsOn: []ID{IDCaseInfo, IDSubject},
		Required: []string{"entries", "entry_count"}},
	{ID: IDSessions, Title: "Review of Surveillance Sessions", DependsOn: []ID{IDSurveillance},
		Required: []string{"sessions", "total_minutes"}},
	{ID: IDDocuments, Title: "Review of Supporting Documents", DependsOn: []ID{IDCaseInfo},
		Required: []string{"documents", "document_count"}},
	{ID: IDBilling, Title: "Billing Summary", DependsOn: []ID{IDCaseInfo, IDSurveillance},
		Required: []string{"lines", "total_cents"}},
	{ID: IDConclusion, Title: "Conclusion", DependsOn: []ID{IDCaseInfo, IDSessions, IDDocuments},
		Required: []string{"findings", "report_type"}},
	{ID: IDMedia, Title: "Photo & Media Evidence Index", DependsOn: []ID{IDCaseInfo},
		Required: []string{"media", "media_count"}},
	{ID: IDCustody, Title: "Chain of Custody & Certification", DependsOn: []ID{IDDocuments, IDMedia},
		Required: []string{"items", "custody_verified", "certification"}},
	{ID: IDDisclosure, Title: "Disclosure Page", DependsOn: []ID{IDCaseInfo},
		Required: []string{"disclosures"}},
	{ID: IDTOC, Title: "Table of Contents",
		DependsOn: []ID{IDCover, IDSubject, IDSurveillance, IDSessions, IDDocuments, IDBilling, IDConclusion, IDMedia, IDCustody, IDDisclosure},
		Required:  []string{"entries"}},
}

// reportOrder is the order sections appear in the assembled report.
var reportOrder = []ID{
	IDCover, IDTOC, IDCaseInfo, IDSubject, IDSurveillance, IDSessions,
	IDDocuments, IDBilling, IDConclusion, IDMedia, IDCustody, IDDisclosure,
}

// Definitions returns every section in pipeline order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// IDs returns every section id in pipeline order.
func IDs() []ID {
	ids := make([]ID, len(definitions))
	for i, d := range definitions {
		ids[i] = d.ID
	}
	return ids
}

// ReportOrder returns section ids in the order of the final document.
func ReportOrder() []ID {
	return append([]ID(nil), reportOrder...)
}

// Lookup returns the definition of id.
func Lookup(id ID) (Definition, bool) {
	for _, d := range definitions {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// ParseID parses a section id, accepting "cp", "toc", "dp" in any case.
func ParseID(s string) (ID, error) {
	id := ID(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := Lookup(id); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSection, s)
	}
	return id, nil
}

// Title returns the display title of id.
func (id ID) Title() string {
	if d, ok := Lookup(id); ok {
		return d.Title
	}
	return string(id)
}

// Label returns "Section 3" for numbered sections and the title otherwise.
func (id ID) Label() string {
	if len(id) == 1 && id[0] >= '0' && id[0] <= '9' {
		return "Section " + string(id)
	}
	return id.Title()
}

// Dependents returns every section that depends on id, directly or
// transitively, in pipeline order.
func Dependents(id ID) []ID {
	affected := map[ID]bool{id: true}
	changed := true
	for changed {
		changed = false
		for _, d := range definitions {
			if affected[d.ID] {
				continue
			}
			for _, dep := range d.DependsOn {
				if affected[dep] {
					affected[d.ID] = true
					changed = true
					break
				}
			}
		}
	}

	var out []ID
	for _, d := range definitions {
		if d.ID != id && affected[d.ID] {
			out = append(out, d.ID)
		}
	}
	return out
}

// TopoOrder validates defs and returns their ids so that every section
// follows its dependencies. Ties keep the order of defs.
func TopoOrder(defs []Definition) ([]ID, error) {
	index := make(map[ID]int, len(defs))
	for i, d := range defs {
		if _, dup := index[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate %s", ErrUnknownSection, d.ID)
		}
		index[d.ID] = i
	}

	indegree := make(map[ID]int, len(defs))
	dependents := make(map[ID][]ID, len(defs))
	for _, d := range defs {
		for _, dep := range d.DependsOn {
			if _, ok := index[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownSection, d.ID, dep)
			}
			indegree[d.ID]++
			dependents[dep] = append(dependents[dep], d.ID)
		}
	}

	var ready []ID
	for _, d := range defs {
		if indegree[d.ID] == 0 {
			ready = append(ready, d.ID)
		}
	}

	order := make([]ID, 0, len(defs))
	for len(ready) > 0 {
		sort.SliceStable(ready, func(i, j int) bool { return index[ready[i]] < index[ready[j]] })
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(defs) {
		var stuck []string
		for _, d := range defs {
			if indegree[d.ID] > 0 {
				stuck = append(stuck, string(d.ID))
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(stuck, ", "))
	}
	return order, nil
}
