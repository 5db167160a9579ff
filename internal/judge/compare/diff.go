// Package compare diffs an expected section output against an actual one.
package compare

// Kind is the per-section comparison outcome.
type Kind string

const (
	KindMatch             Kind = "match"
	KindValueMismatch     Kind = "value-mismatch"
	KindMissingInActual   Kind = "missing-in-actual"
	KindMissingInExpected Kind = "missing-in-expected"
)

// Mismatch locates the first differing line of a section.
// A nil line means that side ran out of lines.
type Mismatch struct {
	Index    int     `json:"index"`
	Expected *string `json:"expected"`
	Actual   *string `json:"actual"`
}

// LineNumber is the 1-based position of the mismatch inside the section body.
func (m Mismatch) LineNumber() int {
	return m.Index + 1
}

// Entry is the outcome for one section occurrence.
type Entry struct {
	Name string `json:"name"`
	// Occurrence counts earlier sections with the same name on the side the entry comes from.
	Occurrence int       `json:"occurrence,omitempty"`
	Kind       Kind      `json:"kind"`
	Mismatch   *Mismatch `json:"mismatch,omitempty"`
}

// Diff is the structured comparison of two outputs.
type Diff struct {
	Entries       []Entry `json:"entries"`
	OrderMismatch bool    `json:"order_mismatch"`
}

// Filter returns the entries of the given kind in canonical order.
func (d Diff) Filter(kind Kind) []Entry {
	var out []Entry
	for _, e := range d.Entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Names returns the names of entries of the given kind without duplicates.
func (d Diff) Names(kind Kind) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, e := range d.Filter(kind) {
		if _, ok := seen[e.Name]; ok {
			continue
		}
		seen[e.Name] = struct{}{}
		names = append(names, e.Name)
	}
	return names
}

func (d Diff) has(kind Kind) bool {
	for _, e := range d.Entries {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func (d Diff) HasMissingInActual() bool   { return d.has(KindMissingInActual) }
func (d Diff) HasMissingInExpected() bool { return d.has(KindMissingInExpected) }
func (d Diff) HasValueMismatch() bool     { return d.has(KindValueMismatch) }

// AllMatch is true when every entry matches and the order agrees.
func (d Diff) AllMatch() bool {
	if d.OrderMismatch {
		return false
	}
	for _, e := range d.Entries {
		if e.Kind != KindMatch {
			return false
		}
	}
	return true
}
