package section

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"testing"
)

func TestParseFixtureOutput(t *testing.T) {
	data := "[AAA]\n1 2 3\n4 5 6\n\n[BBB]\n3.14159\n6.27999\n\n[CCC]\n abc  \n def \n\n"
	out := Parse([]byte(data))

	if got, want := out.Names(), []string{"AAA", "BBB", "CCC"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	if got, want := out.Sections[0].Lines, []string{"1 2 3", "4 5 6"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("AAA lines = %q, want %q", got, want)
	}
	// Interior whitespace is content.
	if got, want := out.Sections[2].Lines, []string{" abc  ", " def "}; !reflect.DeepEqual(got, want) {
		t.Fatalf("CCC lines = %q, want %q", got, want)
	}
}

func TestParseStripsEdgeBlankLinesOnly(t *testing.T) {
	out := Parse([]byte("[CCC]\n\nabc \n\n def \n\n"))
	if out.Len() != 1 {
		t.Fatalf("expected one section, got %d", out.Len())
	}
	want := []string{"abc ", "", " def "}
	if !reflect.DeepEqual(out.Sections[0].Lines, want) {
		t.Fatalf("lines = %q, want %q", out.Sections[0].Lines, want)
	}
}

func TestParseEmptySectionIsNotMissing(t *testing.T) {
	out := Parse([]byte("[AAA]\n\n\n[BBB]\nx\n"))
	if !out.Has("AAA") {
		t.Fatal("AAA should be present")
	}
	if !out.Sections[0].Empty || len(out.Sections[0].Lines) != 0 {
		t.Fatalf("AAA should be empty, got %+v", out.Sections[0])
	}
	if out.Sections[1].Empty {
		t.Fatal("BBB has content")
	}
}

func TestParseDiscardsPreamble(t *testing.T) {
	out := Parse([]byte("Enter n: 42\nnoise\n[AAA]\n1\n"))
	if got := out.Names(); !reflect.DeepEqual(got, []string{"AAA"}) {
		t.Fatalf("names = %v", got)
	}
	if got := out.Sections[0].Lines; !reflect.DeepEqual(got, []string{"1"}) {
		t.Fatalf("lines = %q", got)
	}
}

func TestParseKeepsDuplicateSections(t *testing.T) {
	out := Parse([]byte("[AAA]\n1\n[BBB]\n2\n[AAA]\n3\n"))
	if out.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", out.Len())
	}
	if got := out.Names(); !reflect.DeepEqual(got, []string{"AAA", "BBB"}) {
		t.Fatalf("names = %v", got)
	}
	found := out.Find("AAA")
	if len(found) != 2 || found[0].Lines[0] != "1" || found[1].Lines[0] != "3" {
		t.Fatalf("occurrences = %+v", found)
	}
}

func TestParseWithoutHeaders(t *testing.T) {
	for _, input := range []string{"", "hello\nworld\n", "[aaa]\nlower\n", "[A A]\nspace\n", " [AAA]\nindented\n"} {
		out := Parse([]byte(input))
		if out.Len() != 0 {
			t.Errorf("input %q: expected empty output, got %+v", input, out)
		}
	}
}

func TestParseHandlesCRLFAndMissingFinalNewline(t *testing.T) {
	out := Parse([]byte("[AAA]\r\n1 2\r\n3 4"))
	if out.Len() != 1 {
		t.Fatalf("expected one section, got %d", out.Len())
	}
	if got, want := out.Sections[0].Lines, []string{"1 2", "3 4"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
}

func TestParseIsIdempotent(t *testing.T) {
	inputs := []string{
		"[AAA]\n1 2 3\n4 5 6\n\n[BBB]\n3.14159\n6.27999\n\n",
		"preamble\n[CCC]\n\nabc \n\n def \n\n[DDD]\nfour five\n",
		"[AAA]\n\n[AAA]\nx\n[B_2]\n  \n y\n",
		"no headers at all\n",
	}
	for _, input := range inputs {
		first := Parse([]byte(input))
		second := Parse(first.Serialize())
		if !first.Equal(second) {
			t.Errorf("input %q: reparse mismatch\nfirst:  %+v\nsecond: %+v", input, first, second)
		}
	}
}

func TestCustomHeaderPattern(t *testing.T) {
	p := Parser{Header: regexp.MustCompile(`^\[(\.?[A-Z_][A-Z0-9_]*)\]$`)}
	out := p.Parse([]byte("[.TEST]\nfirst\n[AAA]\n1\n"))
	if got := out.Names(); !reflect.DeepEqual(got, []string{".TEST", "AAA"}) {
		t.Fatalf("names = %v", got)
	}
	if Parse([]byte("[.TEST]\nfirst\n")).Len() != 0 {
		t.Fatal("default parser must not accept special tags")
	}
}

type failingReader struct {
	data string
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, errors.New("stream broke")
	}
	r.done = true
	return copy(p, r.data), nil
}

func TestParseReaderReturnsReadErrorWithPartialOutput(t *testing.T) {
	out, err := ParseReader(&failingReader{data: "[AAA]\n1\n[BBB]\n2\n"})
	if err == nil || !strings.Contains(err.Error(), "stream broke") {
		t.Fatalf("expected read error, got %v", err)
	}
	if got := out.Names(); !reflect.DeepEqual(got, []string{"AAA", "BBB"}) {
		t.Fatalf("partial names = %v", got)
	}
}

func TestNewNormalizesSections(t *testing.T) {
	out := New(Section{Name: "AAA", Lines: []string{"", "x", "  "}}, Section{Name: "BBB"})
	if got := out.Sections[0].Lines; !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("lines = %q", got)
	}
	if !out.Sections[1].Empty {
		t.Fatal("BBB should be empty")
	}
	if string(out.Serialize()) != "[AAA]\nx\n\n[BBB]\n\n" {
		t.Fatalf("serialize = %q", out.Serialize())
	}
}
