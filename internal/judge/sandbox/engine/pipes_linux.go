//go:build linux

package engine

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// subjectPipes hands the subject raw pipe ends so cmd.Wait has no copy
// goroutines to wait for and returns as soon as the leader is reaped.
type subjectPipes struct {
	stdout *capWriter
	stderr *capWriter

	stdinW *os.File
	// child ends, closed in the parent once the subject has started.
	childEnds []*os.File
	readEnds  []*os.File

	wg      sync.WaitGroup
	mu      sync.Mutex
	readErr error
}

func openPipes(cmd *exec.Cmd, withStdin bool, outputLimit int64) (*subjectPipes, error) {
	p := &subjectPipes{stdout: newCapWriter(outputLimit), stderr: newCapWriter(outputLimit)}
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	p.readEnds = append(p.readEnds, outR)
	p.childEnds = append(p.childEnds, outW)

	errR, errW, err := os.Pipe()
	if err != nil {
		p.abort()
		return nil, err
	}
	p.readEnds = append(p.readEnds, errR)
	p.childEnds = append(p.childEnds, errW)
	cmd.Stdout = outW
	cmd.Stderr = errW

	if withStdin {
		inR, inW, err := os.Pipe()
		if err != nil {
			p.abort()
			return nil, err
		}
		p.childEnds = append(p.childEnds, inR)
		p.stdinW = inW
		cmd.Stdin = inR
	}
	return p, nil
}

// started closes the parent's copies of the child ends and begins feeding
// stdin and draining both output streams.
func (p *subjectPipes) started(stdin []byte) {
	closeAll(p.childEnds)
	p.childEnds = nil

	if p.stdinW != nil {
		go func(w *os.File) {
			// EPIPE just means the subject stopped reading.
			_, _ = w.Write(stdin)
			_ = w.Close()
		}(p.stdinW)
	}
	p.wg.Add(2)
	go p.copy(p.stdout, p.readEnds[0])
	go p.copy(p.stderr, p.readEnds[1])
}

func (p *subjectPipes) copy(dst *capWriter, src *os.File) {
	defer p.wg.Done()
	if _, err := io.Copy(dst, src); err != nil && !errors.Is(err, os.ErrClosed) {
		p.mu.Lock()
		p.readErr = errors.Join(p.readErr, err)
		p.mu.Unlock()
	}
}

// drain waits up to grace for both streams to reach EOF, then closes the
// read ends so an escaped holder cannot block the run. It reports whether
// the streams ended on their own.
func (p *subjectPipes) drain(grace time.Duration) bool {
	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	clean := true
	select {
	case <-finished:
	case <-timer.C:
		clean = false
	}
	closeAll(p.readEnds)
	if p.stdinW != nil {
		_ = p.stdinW.Close()
	}
	<-finished
	return clean
}

func (p *subjectPipes) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readErr
}

// abort releases every pipe when the subject never started.
func (p *subjectPipes) abort() {
	closeAll(p.childEnds)
	closeAll(p.readEnds)
	if p.stdinW != nil {
		_ = p.stdinW.Close()
	}
}

func closeAll(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
