// Package section models tagged program output: named blocks of lines
// introduced by a "[NAME]" header line.
package section

import "strings"

// Section is one tagged block of output.
type Section struct {
	Name  string   `json:"name"`
	Lines []string `json:"lines"`
	// Empty is set when the header was present but no content line followed it.
	Empty bool `json:"empty,omitempty"`
}

// Equal compares name and content line by line, whitespace included.
func (s Section) Equal(other Section) bool {
	if s.Name != other.Name || len(s.Lines) != len(other.Lines) {
		return false
	}
	for i := range s.Lines {
		if s.Lines[i] != other.Lines[i] {
			return false
		}
	}
	return true
}

// Text renders the body as newline-terminated lines.
func (s Section) Text() string {
	if len(s.Lines) == 0 {
		return ""
	}
	return strings.Join(s.Lines, "\n") + "\n"
}

// ParsedOutput is the ordered list of sections found in one stream.
// Order is significant and names may repeat.
type ParsedOutput struct {
	Sections []Section `json:"sections"`
}

// New builds a ParsedOutput from sections in the given order.
func New(sections ...Section) ParsedOutput {
	out := ParsedOutput{Sections: make([]Section, 0, len(sections))}
	for _, s := range sections {
		out.Sections = append(out.Sections, normalize(s))
	}
	return out
}

// Len returns the number of section entries, duplicates included.
func (p ParsedOutput) Len() int {
	return len(p.Sections)
}

// Has reports whether at least one section carries name.
func (p ParsedOutput) Has(name string) bool {
	for _, s := range p.Sections {
		if s.Name == name {
			return true
		}
	}
	return false
}

// Names returns distinct section names in first-seen order.
func (p ParsedOutput) Names() []string {
	seen := make(map[string]struct{}, len(p.Sections))
	names := make([]string, 0, len(p.Sections))
	for _, s := range p.Sections {
		if _, ok := seen[s.Name]; ok {
			continue
		}
		seen[s.Name] = struct{}{}
		names = append(names, s.Name)
	}
	return names
}

// Find returns every occurrence of name in stream order.
func (p ParsedOutput) Find(name string) []Section {
	var found []Section
	for _, s := range p.Sections {
		if s.Name == name {
			found = append(found, s)
		}
	}
	return found
}

// Equal compares two outputs entry by entry, order included.
func (p ParsedOutput) Equal(other ParsedOutput) bool {
	if len(p.Sections) != len(other.Sections) {
		return false
	}
	for i := range p.Sections {
		if !p.Sections[i].Equal(other.Sections[i]) || p.Sections[i].Empty != other.Sections[i].Empty {
			return false
		}
	}
	return true
}

// Serialize renders the output in the wire format "[NAME]\n<lines>\n\n".
func (p ParsedOutput) Serialize() []byte {
	var b strings.Builder
	for _, s := range p.Sections {
		b.WriteString("[")
		b.WriteString(s.Name)
		b.WriteString("]\n")
		b.WriteString(s.Text())
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// normalize strips blank lines at both ends of the body and recomputes Empty.
func normalize(s Section) Section {
	lines := s.Lines
	start, end := 0, len(lines)
	for start < end && isBlank(lines[start]) {
		start++
	}
	for end > start && isBlank(lines[end-1]) {
		end--
	}
	body := make([]string, end-start)
	copy(body, lines[start:end])
	return Section{Name: s.Name, Lines: body, Empty: len(body) == 0}
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
