package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/paralela17-sudo/tradepulse-bot/internal/scanner"
)

// JSONL appends one summary line per scan for later analysis.
type JSONL struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

var _ scanner.Sink = (*JSONL)(nil)

type reportLine struct {
	ID        string           `json:"id"`
	StartedAt string           `json:"started_at"`
	TookMs    int64            `json:"took_ms"`
	Scanned   int              `json:"scanned"`
	Ranked    []scanner.Result `json:"ranked"`
}

// NewJSONL creates/opens the target file and returns a sink.
func NewJSONL(path string) (*JSONL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONL{file: file, enc: json.NewEncoder(file)}, nil
}

func (j *JSONL) Publish(_ context.Context, r scanner.Report) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return errors.New("jsonl sink closed")
	}
	err := j.enc.Encode(reportLine{
		ID:        r.ID.String(),
		StartedAt: r.StartedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		TookMs:    r.Duration.Milliseconds(),
		Scanned:   len(r.Results),
		Ranked:    r.Ranked,
	})
	if err != nil {
		return fmt.Errorf("append report: %w", err)
	}
	return nil
}

func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// Multi fans a report out to every sink and joins their errors.
type Multi []scanner.Sink

func (m Multi) Publish(ctx context.Context, r scanner.Report) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
