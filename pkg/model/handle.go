package model

import (
	"sync"
	"sync/atomic"
)

// Handle lazily loads a model exactly once and shares it read-only. A
// failed load is not retried; the same error is returned to every caller.
type Handle struct {
	load   func() (*Model, error)
	once   sync.Once
	model  *Model
	err    error
	loaded atomic.Bool
}

func NewHandle(load func() (*Model, error)) *Handle {
	return &Handle{load: load}
}

// Model returns the shared model, loading it on first use.
func (h *Handle) Model() (*Model, error) {
	h.once.Do(func() {
		h.model, h.err = h.load()
		h.loaded.Store(h.err == nil)
	})
	return h.model, h.err
}

// Predictor is Model as a Predictor.
func (h *Handle) Predictor() (Predictor, error) {
	m, err := h.Model()
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Loaded reports whether the model has been loaded successfully. It never
// triggers a load.
func (h *Handle) Loaded() bool {
	return h.loaded.Load()
}
