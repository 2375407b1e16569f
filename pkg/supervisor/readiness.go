package supervisor

import (
	"bufio"
	"io"
	"os"
	"strings"
	"time"

	"github.com/core-tools/hsu-mcservice/pkg/errors"
)

// logTail reads lines appended to a file; an incomplete last line is held
// back until its newline arrives.
type logTail struct {
	reader  *bufio.Reader
	pending strings.Builder
}

func newLogTail(file *os.File) *logTail {
	return &logTail{reader: bufio.NewReader(file)}
}

// scan consumes everything currently in the file and reports whether any
// line, complete or not, contains marker.
func (t *logTail) scan(marker string) (bool, error) {
	for {
		chunk, err := t.reader.ReadString('\n')
		t.pending.WriteString(chunk)
		if strings.Contains(t.pending.String(), marker) {
			return true, nil
		}
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		t.pending.Reset()
	}
}

func (s *Supervisor) awaitReadiness(exited <-chan struct{}, timeout time.Duration) (bool, error) {
	logFile, err := os.Open(s.options.OutputLogPath)
	if err != nil {
		return false, errors.NewIOError("failed to open server output log for reading", err).
			WithContext("path", s.options.OutputLogPath)
	}
	defer logFile.Close()

	tail := newLogTail(logFile)
	marker := s.options.ReadinessMarker
	started := time.Now()

	ticker := time.NewTicker(s.options.ReadinessPollInterval)
	defer ticker.Stop()

	for {
		ready, err := tail.scan(marker)
		if err != nil {
			return false, errors.NewIOError("failed to read server output log", err)
		}
		if ready {
			s.logger.Infof("Server started in %v", time.Since(started).Round(time.Millisecond))
			return true, nil
		}

		if timeout > 0 && time.Since(started) >= timeout {
			s.logger.Warnf("Server did not report readiness within %v, leaving it running", timeout)
			return false, errors.NewTimeoutError("server readiness timed out", nil).
				WithContext("timeout", timeout.String())
		}

		select {
		case <-exited:
			if ready, _ := tail.scan(marker); ready {
				return true, nil
			}
			return false, errors.NewProcessError("server exited before becoming ready", nil)
		case <-ticker.C:
		}
	}
}
