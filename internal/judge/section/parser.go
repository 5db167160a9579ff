package section

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strings"
)

// DefaultHeader matches a whole "[NAME]" line with an uppercase identifier.
var DefaultHeader = regexp.MustCompile(`^\[([A-Z_][A-Z0-9_]*)\]$`)

// Parser splits a stream into sections. The zero value uses DefaultHeader.
type Parser struct {
	// Header must match a whole line and capture the section name in group 1.
	Header *regexp.Regexp
}

// Parse parses data with the default header pattern.
func Parse(data []byte) ParsedOutput {
	return Parser{}.Parse(data)
}

// ParseReader parses r with the default header pattern.
func ParseReader(r io.Reader) (ParsedOutput, error) {
	return Parser{}.ParseReader(r)
}

// Parse never fails: lines that are not headers belong to the current
// section, or are dropped when no header has been seen yet.
func (p Parser) Parse(data []byte) ParsedOutput {
	out, _ := p.ParseReader(bytes.NewReader(data))
	return out
}

// ParseReader reads r to EOF. Only read errors are returned.
func (p Parser) ParseReader(r io.Reader) (ParsedOutput, error) {
	header := p.Header
	if header == nil {
		header = DefaultHeader
	}

	var (
		out     ParsedOutput
		current *Section
	)
	flush := func() {
		if current != nil {
			out.Sections = append(out.Sections, normalize(*current))
			current = nil
		}
	}

	br := bufio.NewReader(r)
	for {
		raw, err := br.ReadString('\n')
		if len(raw) > 0 {
			line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
			if m := header.FindStringSubmatch(line); m != nil {
				flush()
				current = &Section{Name: m[1]}
			} else if current != nil {
				current.Lines = append(current.Lines, line)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			flush()
			return out, err
		}
	}
	flush()
	return out, nil
}
