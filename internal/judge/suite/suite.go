// Package suite reads reference suites: one file holding the expected
// sections of several test cases plus per-case input, arguments and
// temporary file content.
package suite

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"pvjudge/internal/judge/section"
	appErr "pvjudge/pkg/errors"
)

// Special tags start with a dot and never appear in expected output.
const (
	TagTest     = ".TEST"
	TagInput    = ".INPUT"
	TagArgs     = ".ARGS"
	TagFile     = ".FILE"
	TagSections = ".SECTIONS"

	// FileArg in a case's arguments is replaced with the temp file path.
	FileArg = ".FILE"

	OptionUnordered = "unordered"
)

// DefaultMaxBytes bounds suites read through ParseReader.
const DefaultMaxBytes int64 = 8 << 20

var parser = section.Parser{Header: regexp.MustCompile(`^\[(\.?[A-Z_][A-Z0-9_]*)\]$`)}

// Case is one judged invocation of the subject.
type Case struct {
	Name     string
	Input    []byte
	Args     []string
	File     *string
	Expected section.ParsedOutput
	// Options maps a section name to its .SECTIONS options.
	Options map[string][]string
}

// Unordered returns the sections whose lines may appear in any order.
func (c Case) Unordered() map[string]bool {
	out := make(map[string]bool)
	for name, opts := range c.Options {
		for _, opt := range opts {
			if opt == OptionUnordered {
				out[name] = true
			}
		}
	}
	return out
}

// UsesFile reports whether the case provides temporary file content.
func (c Case) UsesFile() bool {
	return c.File != nil
}

// Suite is an ordered list of cases.
type Suite struct {
	Cases []Case
}

// Len returns the number of cases.
func (s Suite) Len() int {
	return len(s.Cases)
}

// Case returns the case at index i, or false when out of range.
func (s Suite) Case(i int) (Case, bool) {
	if i < 0 || i >= len(s.Cases) {
		return Case{}, false
	}
	return s.Cases[i], true
}

// ParseReader reads at most maxBytes (DefaultMaxBytes when <= 0) and parses them.
func ParseReader(r io.Reader, maxBytes int64) (Suite, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return Suite{}, appErr.Wrapf(err, appErr.SuiteInvalid, "read suite: %v", err)
	}
	if int64(len(data)) > maxBytes {
		return Suite{}, appErr.Newf(appErr.SuiteTooLarge, "suite exceeds %d bytes", maxBytes)
	}
	return Parse(data)
}

// Parse builds a suite. Sections before the first [.TEST] are shared by
// every case; without any [.TEST] they form a single unnamed case. A
// section repeated within a case is merged into its first occurrence.
// Lines starting with '#' are comments.
func Parse(data []byte) (Suite, error) {
	parsed := parser.Parse(stripComments(data))
	if parsed.Len() == 0 {
		return Suite{}, appErr.Newf(appErr.SuiteInvalid, "suite has no sections")
	}

	var prefix []section.Section
	var groups []group
	tests := 0
	for _, s := range parsed.Sections {
		if err := validateTag(s.Name); err != nil {
			return Suite{}, err
		}
		if s.Name == TagTest {
			tests++
			name := fmt.Sprintf("Test-%d", tests)
			if len(s.Lines) > 0 {
				name = strings.TrimSpace(s.Lines[0])
			}
			groups = append(groups, group{name: name})
			continue
		}
		if len(groups) == 0 {
			prefix = append(prefix, s)
			continue
		}
		last := &groups[len(groups)-1]
		last.sections = append(last.sections, s)
	}
	if len(groups) == 0 {
		groups = append(groups, group{})
	}

	suite := Suite{Cases: make([]Case, 0, len(groups))}
	for _, g := range groups {
		b := newCaseBuilder(g.name)
		for _, s := range prefix {
			b.add(s)
		}
		for _, s := range g.sections {
			b.add(s)
		}
		c := b.build()
		if !c.UsesFile() && containsArg(c.Args, FileArg) {
			return Suite{}, appErr.Newf(appErr.SuiteInvalid, "case %s passes %s but has no [%s] section", c.Name, FileArg, TagFile)
		}
		suite.Cases = append(suite.Cases, c)
	}
	return suite, nil
}

type group struct {
	name     string
	sections []section.Section
}

type caseBuilder struct {
	name    string
	order   []string
	lines   map[string][]string
	options map[string][]string
}

func newCaseBuilder(name string) *caseBuilder {
	return &caseBuilder{
		name:    name,
		lines:   make(map[string][]string),
		options: make(map[string][]string),
	}
}

func (b *caseBuilder) add(s section.Section) {
	if s.Name == TagSections {
		for _, line := range s.Lines {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			b.options[fields[0]] = fields[1:]
		}
		return
	}
	if _, ok := b.lines[s.Name]; !ok {
		b.order = append(b.order, s.Name)
		b.lines[s.Name] = []string{}
	}
	b.lines[s.Name] = append(b.lines[s.Name], s.Lines...)
}

func (b *caseBuilder) build() Case {
	c := Case{Name: b.name, Options: b.options}
	var expected []section.Section
	for _, name := range b.order {
		lines := b.lines[name]
		switch name {
		case TagInput:
			if len(lines) > 0 {
				c.Input = []byte(strings.Join(lines, "\n") + "\n")
			}
		case TagArgs:
			for _, line := range lines {
				if arg := strings.TrimSpace(line); arg != "" {
					c.Args = append(c.Args, arg)
				}
			}
		case TagFile:
			content := ""
			if len(lines) > 0 {
				content = strings.Join(lines, "\n") + "\n"
			}
			c.File = &content
		default:
			expected = append(expected, section.Section{Name: name, Lines: lines})
		}
	}
	c.Expected = section.New(expected...)
	return c
}

func containsArg(args []string, want string) bool {
	for _, arg := range args {
		if arg == want {
			return true
		}
	}
	return false
}

func validateTag(name string) error {
	if !strings.HasPrefix(name, ".") {
		return nil
	}
	switch name {
	case TagTest, TagInput, TagArgs, TagFile, TagSections:
		return nil
	}
	return appErr.Newf(appErr.SuiteInvalid, "unknown special section [%s]", name)
}

func stripComments(data []byte) []byte {
	if !bytes.Contains(data, []byte("#")) {
		return data
	}
	lines := bytes.SplitAfter(data, []byte("\n"))
	out := make([]byte, 0, len(data))
	for _, line := range lines {
		if bytes.HasPrefix(bytes.TrimLeft(line, " \t"), []byte("#")) {
			continue
		}
		out = append(out, line...)
	}
	return out
}
