package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TranscriptLog appends delivered transcripts to a session file named
// transcription_<YYYYMMDD_HHMMSS>.log.
type TranscriptLog struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewTranscriptLog creates dir and returns a log whose file name is stamped
// with the current time. The file itself is created on first write.
func NewTranscriptLog(dir string) (*TranscriptLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("logging: create transcript dir: %w", err)
	}
	name := fmt.Sprintf("transcription_%s.log", time.Now().Format("20060102_150405"))
	return &TranscriptLog{path: filepath.Join(dir, name), now: time.Now}, nil
}

// Path returns the session file path.
func (l *TranscriptLog) Path() string {
	return l.path
}

// Write appends "[time] (elapsed) | text". A nil log is a no-op.
func (l *TranscriptLog) Write(text string, elapsed time.Duration) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("logging: open transcript log: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s\n", FormatTranscript(l.now(), elapsed, text))
	return err
}

// FormatTranscript renders one transcript line without a trailing newline.
func FormatTranscript(at time.Time, elapsed time.Duration, text string) string {
	return fmt.Sprintf("[%s] (%.3fs) | %s", at.Format(TimeFormat), elapsed.Seconds(), text)
}
