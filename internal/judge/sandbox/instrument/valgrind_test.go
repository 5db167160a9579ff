package instrument

import (
	"reflect"
	"testing"

	"pvjudge/internal/judge/sandbox/result"
)

const leakReport = `==4242== Memcheck, a memory error detector
==4242== Command: ./program 7
==4242==
subject diagnostic
==4242== HEAP SUMMARY:
==4242==     in use at exit: 1,024 bytes in 2 blocks
==4242==   total heap usage: 5 allocs, 3 frees, 2,048 bytes allocated
==4242==
==4242== ERROR SUMMARY: 1 errors from 1 contexts (suppressed: 0 from 0)
`

const cleanReport = `==17== HEAP SUMMARY:
==17==     in use at exit: 0 bytes in 0 blocks
==17==   total heap usage: 1 allocs, 1 frees, 1,024 bytes allocated
==17==
==17== All heap blocks were freed -- no leaks are possible
==17==
==17== ERROR SUMMARY: 0 errors from 0 contexts (suppressed: 0 from 0)
`

func TestValgrindProbeWrap(t *testing.T) {
	p := NewValgrindProbe(ValgrindConfig{ExtraArgs: []string{"-q"}})
	got := p.Wrap([]string{"./program", "7"})
	want := []string{"valgrind", "--tool=memcheck", "--leak-check=full", "-q", "./program", "7"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Wrap() = %v, want %v", got, want)
	}
}

func TestValgrindProbeCollectLeak(t *testing.T) {
	res := &result.RunResult{Stderr: []byte(leakReport)}
	if err := NewValgrindProbe(ValgrindConfig{}).Collect(res); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	r := res.Resources
	if r.LeakedBytes == nil || *r.LeakedBytes != 1024 {
		t.Fatalf("LeakedBytes = %v", r.LeakedBytes)
	}
	if r.OutstandingAllocs == nil || *r.OutstandingAllocs != 2 {
		t.Fatalf("OutstandingAllocs = %v", r.OutstandingAllocs)
	}
	if r.MemoryErrors == nil || *r.MemoryErrors != 1 {
		t.Fatalf("MemoryErrors = %v", r.MemoryErrors)
	}
	if string(res.Stderr) != "subject diagnostic\n" {
		t.Fatalf("Stderr = %q", res.Stderr)
	}
}

func TestValgrindProbeCollectClean(t *testing.T) {
	res := &result.RunResult{Stderr: []byte(cleanReport)}
	if err := NewValgrindProbe(ValgrindConfig{}).Collect(res); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if *res.Resources.LeakedBytes != 0 || *res.Resources.OutstandingAllocs != 0 || *res.Resources.MemoryErrors != 0 {
		t.Fatalf("unexpected snapshot %+v", res.Resources)
	}
	if len(res.Stderr) != 0 {
		t.Fatalf("Stderr = %q", res.Stderr)
	}
}

func TestValgrindProbeWithoutReportLeavesUnknown(t *testing.T) {
	res := &result.RunResult{Stderr: []byte("killed early\n")}
	if err := NewValgrindProbe(ValgrindConfig{}).Collect(res); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if res.Resources.LeakedBytes != nil || res.Resources.OutstandingAllocs != nil {
		t.Fatalf("snapshot should stay unknown: %+v", res.Resources)
	}

	notLaunched := &result.RunResult{LaunchErr: "not found", Stderr: []byte(leakReport)}
	_ = NewValgrindProbe(ValgrindConfig{}).Collect(notLaunched)
	if notLaunched.Resources.LeakedBytes != nil {
		t.Fatal("probe must ignore runs that never launched")
	}
}

func TestNewProbe(t *testing.T) {
	if p, err := New("", ValgrindConfig{}); err != nil || p.Name() != "none" {
		t.Fatalf("New(\"\") = %v, %v", p, err)
	}
	if p, err := New("valgrind", ValgrindConfig{Path: "/usr/bin/valgrind"}); err != nil || p.Wrap(nil)[0] != "/usr/bin/valgrind" {
		t.Fatalf("New(valgrind) = %v, %v", p, err)
	}
	if _, err := New("dtrace", ValgrindConfig{}); err == nil {
		t.Fatal("expected unknown probe error")
	}
}
