package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/DevenJnando/flood-notifications-producer/internal/domain"
)

// DeadLetter records messages that exhausted their publish retries, one JSON
// line per message, for manual recovery. The backing file rotates so a long
// broker outage cannot fill the disk.
type DeadLetter struct {
	mu sync.Mutex
	w  io.Writer
}

type deadLetterRecord struct {
	Queue      string          `json:"queue"`
	Body       json.RawMessage `json:"body"`
	Attempts   int             `json:"attempts"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// NewDeadLetter creates a dead-letter log writing to the given file path.
func NewDeadLetter(path string) *DeadLetter {
	return &DeadLetter{
		w: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
		},
	}
}

// NewDeadLetterWriter creates a dead-letter log over an arbitrary writer.
func NewDeadLetterWriter(w io.Writer) *DeadLetter {
	return &DeadLetter{w: w}
}

// Record appends one dead-letter line. Body must be valid JSON, which every
// producer payload is.
func (d *DeadLetter) Record(queue string, body []byte, attempts int) error {
	line, err := json.Marshal(deadLetterRecord{
		Queue:      queue,
		Body:       body,
		Attempts:   attempts,
		RecordedAt: domain.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead-letter record: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write dead-letter record: %w", err)
	}
	return nil
}
