// Package installer supervises vendor installer executables: an
// isolated child process whose merged output is streamed line-by-line
// into the request's log, guarded by two independent timeouts.
package installer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/msfg/msfg/pkg/provision/logbook"
)

var (
	ErrJavaNotFound = errors.New("java runtime not found")

	// ErrStuck: the process produced no output for the stuck window
	// while still running.
	ErrStuck = errors.New("installer produced no output, assuming stuck")

	// ErrTimeout: the overall wall-clock budget expired.
	ErrTimeout = errors.New("installer timed out")
)

// Result carries the installer's exit code and its accumulated
// output up to the point the run ended.
type Result struct {
	ExitCode int
	Output   string
}

// Supervisor runs one installer process per call. Zero-value timeouts
// fall back to the 5-minute defaults.
type Supervisor struct {
	Logs *logbook.Registry

	// Overall bounds total wall-clock time.
	Overall time.Duration

	// Stuck bounds the silence between two output lines.
	Stuck time.Duration

	// SuccessPhrases trigger early completion without waiting for
	// process exit; a short grace period flushes remaining output.
	SuccessPhrases []string

	// Grace is the flush window after a success phrase. Defaults to 2s.
	Grace time.Duration
}

const defaultTimeout = 300 * time.Second

// Run executes `javaPath -jar installerPath args...` in workingDir,
// forwarding every output line to the request log.
//
// # Returns
//
// - Result: exit code (-1 on any failure path) and accumulated output.
//
// - error: nil only when the installer completed with exit code 0.
func (s *Supervisor) Run(ctx context.Context, javaPath, installerPath string, args []string, workingDir, requestID string) (Result, error) {
	if _, err := os.Stat(javaPath); err != nil {
		s.Logs.Append(requestID, fmt.Sprintf("Java not found at %s", javaPath))
		return Result{ExitCode: -1}, fmt.Errorf("%w: %s", ErrJavaNotFound, javaPath)
	}

	overall := s.Overall
	if overall <= 0 {
		overall = defaultTimeout
	}
	stuck := s.Stuck
	if stuck <= 0 {
		stuck = defaultTimeout
	}
	grace := s.Grace
	if grace <= 0 {
		grace = 2 * time.Second
	}

	cmd := exec.Command(javaPath, append([]string{"-jar", installerPath}, args...)...)
	cmd.Dir = workingDir

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		s.Logs.Append(requestID, fmt.Sprintf("Subprocess error: %s", err))
		return Result{ExitCode: -1}, err
	}

	// on any return path: failing the pipe unblocks the child's output
	// copier so cmd.Wait can finish, and closing done releases a
	// scanner stuck on a full channel.
	defer pr.Close()
	done := make(chan struct{})
	defer close(done)

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case lines <- line:
			case <-done:
				return
			}
		}
	}()

	exited := make(chan int, 1)
	go func() {
		err := cmd.Wait()
		pw.Close()
		code := 0
		var xerr *exec.ExitError
		if errors.As(err, &xerr) {
			code = xerr.ExitCode()
		} else if err != nil {
			code = -1
		}
		exited <- code
	}()

	var output []string
	kill := func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	}

	overallTimer := time.NewTimer(overall)
	defer overallTimer.Stop()
	stuckTimer := time.NewTimer(stuck)
	defer stuckTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			kill()
			return Result{ExitCode: -1, Output: strings.Join(output, "\n")}, ctx.Err()

		case line, ok := <-lines:
			if !ok {
				// output closed; the exit code follows shortly.
				code := <-exited
				s.Logs.Append(requestID, fmt.Sprintf("Installer completed with code %d", code))
				result := Result{ExitCode: code, Output: strings.Join(output, "\n")}
				if code != 0 {
					return result, fmt.Errorf("installer failed with exit code %d", code)
				}
				return result, nil
			}
			output = append(output, line)
			s.Logs.Append(requestID, "Installer: "+line)
			resetTimer(stuckTimer, stuck)

			if s.matchesSuccess(line) {
				s.Logs.Append(requestID, "Installation completed successfully")
				s.drain(lines, grace, &output, requestID)
				kill()
				return Result{ExitCode: 0, Output: strings.Join(output, "\n")}, nil
			}

		case <-stuckTimer.C:
			s.Logs.Append(requestID, "No output from installer, assuming process is stuck")
			kill()
			output = append(output, "Installer timed out due to no output")
			return Result{ExitCode: -1, Output: strings.Join(output, "\n")}, ErrStuck

		case <-overallTimer.C:
			s.Logs.Append(requestID, fmt.Sprintf("Overall timeout of %s reached", overall))
			kill()
			output = append(output, fmt.Sprintf("Installer timed out after %s", overall))
			return Result{ExitCode: -1, Output: strings.Join(output, "\n")}, ErrTimeout
		}
	}
}

func (s *Supervisor) matchesSuccess(line string) bool {
	for _, phrase := range s.SuccessPhrases {
		if strings.Contains(line, phrase) {
			return true
		}
	}
	return false
}

// drain keeps forwarding output for the grace window so the tail of a
// successful install is not lost.
func (s *Supervisor) drain(lines <-chan string, grace time.Duration, output *[]string, requestID string) {
	deadline := time.After(grace)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			*output = append(*output, line)
			s.Logs.Append(requestID, "Installer: "+line)
		case <-deadline:
			return
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
