package compare

import "pvjudge/internal/judge/section"

// Options tunes the comparison of individual sections.
type Options struct {
	// Unordered names sections whose lines are compared as a multiset.
	Unordered map[string]bool
}

type key struct {
	name string
	occ  int
}

// Sections compares expected against actual with exact, positional line matching.
func Sections(expected, actual section.ParsedOutput) Diff {
	return SectionsWith(expected, actual, Options{})
}

// SectionsWith is Sections with per-section options.
//
// The k-th occurrence of a name in expected is paired with the k-th
// occurrence in actual. Entries follow expected's order, then the
// actual-only occurrences in actual's order.
func SectionsWith(expected, actual section.ParsedOutput, opts Options) Diff {
	expKeys := occurrenceKeys(expected)
	actKeys := occurrenceKeys(actual)

	actIndex := make(map[key]int, len(actKeys))
	for i, k := range actKeys {
		actIndex[k] = i
	}
	expIndex := make(map[key]int, len(expKeys))
	for i, k := range expKeys {
		expIndex[k] = i
	}

	var diff Diff
	var commonInExpected []key
	for i, k := range expKeys {
		j, ok := actIndex[k]
		if !ok {
			diff.Entries = append(diff.Entries, Entry{Name: k.name, Occurrence: k.occ, Kind: KindMissingInActual})
			continue
		}
		commonInExpected = append(commonInExpected, k)
		exp := expected.Sections[i].Lines
		act := actual.Sections[j].Lines
		var mm *Mismatch
		if opts.Unordered[k.name] {
			mm = compareUnordered(exp, act)
		} else {
			mm = compareLines(exp, act)
		}
		entry := Entry{Name: k.name, Occurrence: k.occ, Kind: KindMatch}
		if mm != nil {
			entry.Kind = KindValueMismatch
			entry.Mismatch = mm
		}
		diff.Entries = append(diff.Entries, entry)
	}

	var commonInActual []key
	for _, k := range actKeys {
		if _, ok := expIndex[k]; ok {
			commonInActual = append(commonInActual, k)
			continue
		}
		diff.Entries = append(diff.Entries, Entry{Name: k.name, Occurrence: k.occ, Kind: KindMissingInExpected})
	}

	// Both lists hold the same keys; any positional difference is a reordering.
	for i := range commonInExpected {
		if commonInExpected[i] != commonInActual[i] {
			diff.OrderMismatch = true
			break
		}
	}
	return diff
}

func occurrenceKeys(p section.ParsedOutput) []key {
	counts := make(map[string]int, len(p.Sections))
	keys := make([]key, len(p.Sections))
	for i, s := range p.Sections {
		keys[i] = key{name: s.Name, occ: counts[s.Name]}
		counts[s.Name]++
	}
	return keys
}

// compareLines returns the first positional difference, or nil.
func compareLines(expected, actual []string) *Mismatch {
	n := len(expected)
	if len(actual) > n {
		n = len(actual)
	}
	for i := 0; i < n; i++ {
		e := lineAt(expected, i)
		a := lineAt(actual, i)
		if e == nil || a == nil || *e != *a {
			return &Mismatch{Index: i, Expected: e, Actual: a}
		}
	}
	return nil
}

// compareUnordered matches lines as a multiset. The reported index is the
// first expected line with no partner, or the first surplus actual line.
func compareUnordered(expected, actual []string) *Mismatch {
	remaining := make(map[string]int, len(actual))
	for _, line := range actual {
		remaining[line]++
	}
	for i, line := range expected {
		if remaining[line] == 0 {
			e := line
			return &Mismatch{Index: i, Expected: &e}
		}
		remaining[line]--
	}
	for _, line := range actual {
		if remaining[line] > 0 {
			a := line
			return &Mismatch{Index: len(expected), Actual: &a}
		}
	}
	return nil
}

func lineAt(lines []string, i int) *string {
	if i >= len(lines) {
		return nil
	}
	s := lines[i]
	return &s
}
