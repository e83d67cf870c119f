package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// ProcessSpec describes one miner process launch. Env carries the
// credential material; it is handed to the child verbatim and never
// logged.
type ProcessSpec struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
}

// Process is a handle on a started miner. Wait may be called from one
// goroutine while Stop runs from another.
type Process interface {
	PID() int
	Wait() error
	Stop(timeout time.Duration) error
	StderrTail() string
}

// Runner starts miner processes. The exec-backed runner is the real one;
// tests substitute their own.
type Runner interface {
	Start(ctx context.Context, spec ProcessSpec) (Process, error)
}

type execRunner struct{}

func NewExecRunner() Runner {
	return execRunner{}
}

func (execRunner) Start(ctx context.Context, spec ProcessSpec) (Process, error) {
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	setupProcessGroup(cmd)

	tail := newTailBuffer(4096)
	cmd.Stderr = tail
	cmd.Stdout = nil

	// Miner output goes to a per-workspace log file so crashes leave
	// something to read. Stderr additionally feeds the tail buffer used
	// for failure classification.
	if spec.Dir != "" {
		logPath := filepath.Join(spec.Dir, "miner.log")
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			cmd.Stdout = logFile
			cmd.Stderr = teeWriter{logFile, tail}
			if err := cmd.Start(); err != nil {
				logFile.Close()
				return nil, fmt.Errorf("failed to start %s: %w", spec.Binary, err)
			}
			return newExecProcess(cmd, tail, logFile), nil
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.Binary, err)
	}
	return newExecProcess(cmd, tail, nil), nil
}

type execProcess struct {
	cmd  *exec.Cmd
	tail *tailBuffer
	log  *os.File

	waitOnce sync.Once
	waitErr  error
	done     chan struct{}
}

func newExecProcess(cmd *exec.Cmd, tail *tailBuffer, log *os.File) *execProcess {
	return &execProcess{cmd: cmd, tail: tail, log: log, done: make(chan struct{})}
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		if p.log != nil {
			p.log.Close()
		}
		close(p.done)
	})
	<-p.done
	return p.waitErr
}

// Stop terminates the whole process group: SIGTERM, bounded wait, then
// SIGKILL. Safe to call on an already-dead process.
func (p *execProcess) Stop(timeout time.Duration) error {
	if p.cmd.Process == nil {
		return nil
	}

	terminateProcessGroup(p.cmd)
	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
	}

	if err := killProcessGroup(p.cmd); err != nil {
		return err
	}
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func (p *execProcess) StderrTail() string {
	return p.tail.String()
}

// tailBuffer keeps the last max bytes written, enough to spot an auth
// failure signature without retaining the whole stream.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

type teeWriter struct {
	primary *os.File
	tail    *tailBuffer
}

func (t teeWriter) Write(p []byte) (int, error) {
	t.tail.Write(p)
	return t.primary.Write(p)
}
