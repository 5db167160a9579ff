package classify

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"pvjudge/internal/judge/compare"
	"pvjudge/internal/judge/sandbox/result"
	"pvjudge/internal/judge/section"
)

const reference = "[AAA]\n1 2 3\n4 5 6\n\n[BBB]\n3.14159\n6.27999\n\n"

func exited(code int, stdout string) result.RunResult {
	return result.RunResult{RunID: "r1", ExitCode: result.Int(code), Stdout: []byte(stdout)}
}

func diffOf(expected, actual string) *compare.Diff {
	d := compare.Sections(section.Parse([]byte(expected)), section.Parse([]byte(actual)))
	return &d
}

func TestClassifyCorrectIsReflexive(t *testing.T) {
	c := NewClassifier(Policy{})
	v := c.Classify(exited(0, reference), diffOf(reference, reference))
	if v.Kind != Correct || !v.Passed() {
		t.Fatalf("kind = %s (%s)", v.Kind, v.Reason)
	}
	if v.RunID != "r1" || v.Run == nil || v.Diff == nil {
		t.Fatalf("evidence missing: %+v", v)
	}
}

func TestClassifyPriority(t *testing.T) {
	wrong := "[BBB]\n3.14\n\n[AAA]\n1 2 3\n4 6 5\n\n[ZZZ]\n\n"
	tests := []struct {
		name string
		run  result.RunResult
		want FaultKind
	}{
		{
			name: "launch error beats everything",
			run:  result.RunResult{LaunchErr: "no such file"},
			want: LaunchError,
		},
		{
			name: "timeout beats mismatch",
			run:  result.RunResult{TimedOut: true, Signal: &result.Signal{Number: 9, Name: "SIGKILL"}, Stdout: []byte(wrong)},
			want: TimedOut,
		},
		{
			name: "crash beats missing section",
			run:  result.RunResult{Signal: &result.Signal{Number: 11, Name: "SIGSEGV", Fault: true}, Stdout: []byte("[AAA]\n1 2 3\n4 5 6\n")},
			want: Crashed,
		},
		{
			name: "non-fault signal still crashed",
			run:  result.RunResult{Signal: &result.Signal{Number: 15, Name: "SIGTERM"}},
			want: Crashed,
		},
		{
			name: "non-zero exit beats diff",
			run:  exited(1, wrong),
			want: NonZeroExit,
		},
		{
			name: "output limit",
			run:  result.RunResult{ExitCode: result.Int(0), OutputTruncated: true},
			want: OutputLimitExceeded,
		},
		{
			name: "leak beats diff",
			run: result.RunResult{ExitCode: result.Int(0), Resources: result.ResourceSnapshot{
				OutstandingAllocs: result.Int64(1), LeakedBytes: result.Int64(16),
			}},
			want: ResourceLeak,
		},
		{
			name: "missing section beats unexpected",
			run:  exited(0, wrong),
			want: MissingSection,
		},
	}

	c := NewClassifier(Policy{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(tt.run, diffOf(reference+"[CCC]\nx\n", string(tt.run.Stdout)))
			if v.Kind != tt.want {
				t.Fatalf("kind = %s, want %s (%s)", v.Kind, tt.want, v.Reason)
			}
		})
	}
}

func TestClassifyTimedOutDoesNotAttachDiff(t *testing.T) {
	run := result.RunResult{TimedOut: true, Duration: 2 * time.Second, Stdout: []byte("[AAA]\n")}
	v := NewClassifier(Policy{}).Classify(run, diffOf(reference, "[AAA]\n"))
	if v.Diff != nil {
		t.Fatal("partial output must not be reported as compared")
	}
	if string(v.Run.Stdout) != "[AAA]\n" {
		t.Fatal("partial output must stay attached as evidence")
	}
	if !strings.Contains(v.Reason, "2s") {
		t.Fatalf("reason = %q", v.Reason)
	}
}

func TestClassifySectionRules(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		want     FaultKind
		sections []string
	}{
		{"missing", "[AAA]\n1 2 3\n4 5 6\n", MissingSection, []string{"BBB"}},
		{"unexpected", reference + "[ZZZ]\n1\n", UnexpectedSection, []string{"ZZZ"}},
		{"order", "[BBB]\n3.14159\n6.27999\n[AAA]\n1 2 3\n4 5 6\n", OrderMismatch, nil},
		{"order with value mismatch is value mismatch", "[BBB]\n3.14\n6.27999\n[AAA]\n1 2 3\n4 5 6\n", ValueMismatch, []string{"BBB"}},
		{"value", "[AAA]\n1 2 3\n4 6 5\n[BBB]\n3.14159\n6.27999\n", ValueMismatch, []string{"AAA"}},
	}
	c := NewClassifier(Policy{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(exited(0, tt.actual), diffOf(reference, tt.actual))
			if v.Kind != tt.want {
				t.Fatalf("kind = %s, want %s (%s)", v.Kind, tt.want, v.Reason)
			}
			if !reflect.DeepEqual(v.Sections, tt.sections) {
				t.Fatalf("sections = %v, want %v", v.Sections, tt.sections)
			}
		})
	}
}

func TestClassifyValueMismatchReason(t *testing.T) {
	v := NewClassifier(Policy{}).Classify(exited(0, ""), diffOf("[AAA]\n1 2 3\n4 5 6\n\n", "[AAA]\n1 2 3\n4 6 5\n\n"))
	want := `section AAA line 2: expected "4 5 6", got "4 6 5"`
	if v.Reason != want {
		t.Fatalf("reason = %q, want %q", v.Reason, want)
	}
}

func TestClassifyWithoutDiff(t *testing.T) {
	v := NewClassifier(Policy{}).Classify(exited(0, "garbage"), nil)
	if v.Kind != Correct || v.Diff != nil {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestLeakPolicy(t *testing.T) {
	snap := result.ResourceSnapshot{OutstandingAllocs: result.Int64(2), LeakedBytes: result.Int64(64)}
	run := result.RunResult{ExitCode: result.Int(0), Resources: snap}
	correct := diffOf(reference, reference)

	tests := []struct {
		name   string
		policy Policy
		want   FaultKind
	}{
		{"default flags any outstanding allocation", Policy{}, ResourceLeak},
		{"allocation threshold tolerates two but bytes still count", Policy{MaxOutstandingAllocs: 2}, ResourceLeak},
		{"both thresholds met", Policy{MaxOutstandingAllocs: 2, MaxLeakedBytes: 64}, Correct},
		{"checks disabled", Policy{MaxOutstandingAllocs: -1, MaxLeakedBytes: -1}, Correct},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewClassifier(tt.policy).Classify(run, correct).Kind; got != tt.want {
				t.Fatalf("kind = %s, want %s", got, tt.want)
			}
		})
	}

	unknown := result.RunResult{ExitCode: result.Int(0)}
	if got := NewClassifier(Policy{}).Classify(unknown, correct).Kind; got != Correct {
		t.Fatalf("unknown resources must not be a leak, got %s", got)
	}

	peak := result.RunResult{ExitCode: result.Int(0), Resources: result.ResourceSnapshot{PeakMemoryBytes: result.Int64(1 << 30)}}
	if got := NewClassifier(Policy{MaxPeakMemoryBytes: 1 << 20}).Classify(peak, correct).Kind; got != ResourceLeak {
		t.Fatalf("peak memory over limit = %s", got)
	}
	if got := NewClassifier(Policy{}).Classify(peak, correct).Kind; got != Correct {
		t.Fatalf("peak memory without limit = %s", got)
	}
}

func TestKindsAreOrdered(t *testing.T) {
	if Kinds[0] != LaunchError || Kinds[len(Kinds)-1] != Correct {
		t.Fatalf("unexpected order %v", Kinds)
	}
	seen := map[FaultKind]bool{}
	for _, k := range Kinds {
		if seen[k] {
			t.Fatalf("duplicate kind %s", k)
		}
		seen[k] = true
	}
}
