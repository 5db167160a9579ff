package instrument

import (
	"regexp"
	"strconv"
	"strings"

	"pvjudge/internal/judge/sandbox/result"
	appErr "pvjudge/pkg/errors"
)

const defaultValgrindPath = "valgrind"

// ValgrindConfig configures the memcheck probe.
type ValgrindConfig struct {
	Path      string   `yaml:"path"`
	ExtraArgs []string `yaml:"extraArgs"`
}

// ValgrindProbe runs the subject under memcheck and reads the leak summary
// from its stderr report.
type ValgrindProbe struct {
	path      string
	extraArgs []string
}

var (
	valgrindLine = regexp.MustCompile(`^==\d+==`)
	inUseAtExit  = regexp.MustCompile(`in use at exit: ([\d,]+) bytes in ([\d,]+) blocks`)
	heapUsage    = regexp.MustCompile(`total heap usage: ([\d,]+) allocs, ([\d,]+) frees`)
	errorSummary = regexp.MustCompile(`ERROR SUMMARY: ([\d,]+) errors`)
	allHeapFreed = regexp.MustCompile(`All heap blocks were freed`)
)

func NewValgrindProbe(cfg ValgrindConfig) *ValgrindProbe {
	path := cfg.Path
	if path == "" {
		path = defaultValgrindPath
	}
	return &ValgrindProbe{path: path, extraArgs: cfg.ExtraArgs}
}

func (p *ValgrindProbe) Name() string { return "valgrind" }

func (p *ValgrindProbe) Wrap(cmd []string) []string {
	wrapped := make([]string, 0, len(cmd)+len(p.extraArgs)+3)
	wrapped = append(wrapped, p.path, "--tool=memcheck", "--leak-check=full")
	wrapped = append(wrapped, p.extraArgs...)
	return append(wrapped, cmd...)
}

// Collect parses the memcheck report. A run that never launched, or was
// killed before valgrind printed its summary, leaves the snapshot unknown.
func (p *ValgrindProbe) Collect(res *result.RunResult) error {
	if res == nil || !res.Launched() {
		return nil
	}

	var report, subject []string
	for _, line := range strings.SplitAfter(string(res.Stderr), "\n") {
		if line == "" {
			continue
		}
		if valgrindLine.MatchString(line) {
			report = append(report, line)
			continue
		}
		subject = append(subject, line)
	}
	res.Stderr = []byte(strings.Join(subject, ""))
	if len(report) == 0 {
		return nil
	}

	summary, err := parseMemcheck(report)
	if err != nil {
		return err
	}
	res.Resources.LeakedBytes = summary.leakedBytes
	res.Resources.OutstandingAllocs = summary.outstanding
	res.Resources.MemoryErrors = summary.errors
	return nil
}

type memcheckSummary struct {
	leakedBytes *int64
	outstanding *int64
	errors      *int64
}

func parseMemcheck(lines []string) (memcheckSummary, error) {
	var s memcheckSummary
	var allocs, frees *int64
	for _, line := range lines {
		if m := inUseAtExit.FindStringSubmatch(line); m != nil {
			n, err := parseCount(m[1])
			if err != nil {
				return s, err
			}
			blocks, err := parseCount(m[2])
			if err != nil {
				return s, err
			}
			s.leakedBytes = result.Int64(n)
			s.outstanding = result.Int64(blocks)
			continue
		}
		if m := heapUsage.FindStringSubmatch(line); m != nil {
			a, err := parseCount(m[1])
			if err != nil {
				return s, err
			}
			f, err := parseCount(m[2])
			if err != nil {
				return s, err
			}
			allocs, frees = result.Int64(a), result.Int64(f)
			continue
		}
		if allHeapFreed.MatchString(line) {
			s.leakedBytes = result.Int64(0)
			continue
		}
		if m := errorSummary.FindStringSubmatch(line); m != nil {
			n, err := parseCount(m[1])
			if err != nil {
				return s, err
			}
			s.errors = result.Int64(n)
		}
	}
	if s.outstanding == nil && allocs != nil && frees != nil {
		outstanding := *allocs - *frees
		if outstanding < 0 {
			outstanding = 0
		}
		s.outstanding = result.Int64(outstanding)
	}
	return s, nil
}

func parseCount(raw string) (int64, error) {
	n, err := strconv.ParseInt(strings.ReplaceAll(raw, ",", ""), 10, 64)
	if err != nil {
		return 0, appErr.InfrastructureAs(appErr.ProbeFailed, err, "parse memcheck count %q", raw)
	}
	return n, nil
}
