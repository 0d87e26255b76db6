// Package salvage persists utterances that could not be delivered as WAV
// files for later reprocessing.
package salvage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chaz8081/gostt-relay/internal/audio"
)

// Kind tags why a chunk was written. It is the last element of the filename.
type Kind string

const (
	KindSaved    Kind = "saved"    // save-only mode
	KindRetry    Kind = "retry"    // copy written before a backoff sleep
	KindFailed   Kind = "failed"   // retries exhausted
	KindOverflow Kind = "overflow" // queue over its soft cap
	KindSegment  Kind = "segment"  // debug copy of a submitted utterance
	KindShutdown Kind = "shutdown" // still pending when delivery was cut short
)

const filePrefix = "chunk_"

// Chunk describes one persisted file.
type Chunk struct {
	Path    string
	Counter int
	Kind    Kind
}

// Store writes chunks named chunk_<counter>_<timestamp>_<kind>.wav. The
// zero-padded counter is strictly increasing, so lexical order is creation
// order. Store is safe for concurrent use.
type Store struct {
	dir        string
	sampleRate uint32

	mu      sync.Mutex
	counter int
	now     func() time.Time
}

// NewStore creates dir if needed and continues numbering above any chunks
// already present.
func NewStore(dir string, sampleRate uint32) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("salvage: create dir %q: %w", dir, err)
	}
	s := &Store{dir: dir, sampleRate: sampleRate, now: time.Now}
	chunks, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if c.Counter > s.counter {
			s.counter = c.Counter
		}
	}
	return s, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes pcm as a new chunk and returns its path.
func (s *Store) Save(pcm []byte, kind Kind) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	ts := s.now().Format("20060102_150405.000000")
	ts = strings.Replace(ts, ".", "_", 1)
	name := fmt.Sprintf("%s%06d_%s_%s.wav", filePrefix, s.counter, ts, kind)
	path := filepath.Join(s.dir, name)

	if err := audio.WriteWAVFile(path, pcm, s.sampleRate); err != nil {
		return "", fmt.Errorf("salvage: %w", err)
	}
	return path, nil
}

// List returns the chunks in dir in creation order.
func (s *Store) List() ([]Chunk, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("salvage: read dir: %w", err)
	}
	var chunks []Chunk
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		c, ok := parseName(e.Name())
		if !ok {
			continue
		}
		c.Path = filepath.Join(s.dir, e.Name())
		chunks = append(chunks, c)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Counter < chunks[j].Counter })
	return chunks, nil
}

func parseName(name string) (Chunk, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".wav") {
		return Chunk{}, false
	}
	parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".wav"), "_")
	if len(parts) < 2 {
		return Chunk{}, false
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return Chunk{}, false
	}
	c := Chunk{Counter: n}
	if len(parts) >= 5 {
		c.Kind = Kind(parts[len(parts)-1])
	}
	return c, true
}
