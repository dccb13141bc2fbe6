package halfmarathon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ExtractionTrace records one call to the inference service. It never
// holds the credential used for the call.
type ExtractionTrace struct {
	ID          string          `json:"id"`
	Time        time.Time       `json:"time"`
	Description string          `json:"description"`
	Prompt      string          `json:"prompt"`
	Model       string          `json:"model"`
	Temperature float64         `json:"temperature"`
	Structured  bool            `json:"structured"`
	Response    string          `json:"response,omitempty"`
	Extracted   json.RawMessage `json:"extracted,omitempty"`
	DurationMS  int64           `json:"durationMs"`
	Error       string          `json:"error,omitempty"`
}

type ExtractionRecorder interface {
	RecordExtraction(ctx context.Context, trace *ExtractionTrace) error
}

type NullExtractionRecorder struct{}

var _ ExtractionRecorder = NullExtractionRecorder{}

func (NullExtractionRecorder) RecordExtraction(
	ctx context.Context,
	trace *ExtractionTrace,
) error {
	return nil
}

// FileExtractionRecorder appends traces to a file as JSON lines.
type FileExtractionRecorder struct {
	lock sync.Mutex
	path string
}

var _ ExtractionRecorder = (*FileExtractionRecorder)(nil)

func NewFileExtractionRecorder(path string) *FileExtractionRecorder {
	return &FileExtractionRecorder{path: path}
}

func (r *FileExtractionRecorder) RecordExtraction(
	ctx context.Context,
	trace *ExtractionTrace,
) (err error) {
	var data []byte
	if data, err = json.Marshal(trace); err != nil {
		err = fmt.Errorf("recording extraction: marshaling trace: %w", err)
		return
	}
	data = append(data, '\n')

	r.lock.Lock()
	defer r.lock.Unlock()

	var f *os.File
	if f, err = os.OpenFile(
		r.path,
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0o644,
	); err != nil {
		err = fmt.Errorf(
			"recording extraction: opening file `%s`: %w",
			r.path,
			err,
		)
		return
	}
	defer f.Close()

	if _, err = f.Write(data); err != nil {
		err = fmt.Errorf(
			"recording extraction: writing to file `%s`: %w",
			r.path,
			err,
		)
	}
	return
}

// MultiExtractionRecorder fans a trace out to every recorder, even if some
// of them fail.
type MultiExtractionRecorder []ExtractionRecorder

func (recorders MultiExtractionRecorder) RecordExtraction(
	ctx context.Context,
	trace *ExtractionTrace,
) error {
	var errs []error
	for _, r := range recorders {
		if err := r.RecordExtraction(ctx, trace); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
