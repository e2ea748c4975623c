package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/duynguyendang/outgassing/pkg/common/errors"
	"github.com/duynguyendang/outgassing/pkg/dataset"
)

// Status describes the state of the managed dataset.
type Status struct {
	Loaded   bool      `json:"loaded"`
	Failed   bool      `json:"failed"`
	Error    string    `json:"error,omitempty"`
	Records  int       `json:"records"`
	LoadedAt time.Time `json:"loaded_at,omitzero"`
}

// DatasetManager loads the dataset at most once per process and hands
// the same read-only instance to every caller. A failed load is terminal:
// every later call returns the same error without retrying.
type DatasetManager struct {
	source   dataset.Source
	logger   *slog.Logger
	mu       sync.RWMutex
	done     bool
	ds       *dataset.Dataset
	err      error
	loadedAt time.Time
}

// Option configures a DatasetManager.
type Option func(*DatasetManager)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *DatasetManager) {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
	}
}

// NewDatasetManager creates a manager that loads lazily from source.
func NewDatasetManager(source dataset.Source, opts ...Option) *DatasetManager {
	m := &DatasetManager{
		source: source,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Static returns a manager already holding ds; it never loads.
func Static(ds *dataset.Dataset) *DatasetManager {
	return &DatasetManager{
		logger:   slog.Default(),
		done:     true,
		ds:       ds,
		loadedAt: time.Now(),
	}
}

// Dataset returns the loaded dataset, loading it on first use.
// Concurrent first callers block until the single load finishes.
func (m *DatasetManager) Dataset(ctx context.Context) (*dataset.Dataset, error) {
	// Fast path
	m.mu.RLock()
	if m.done {
		ds, err := m.ds, m.err
		m.mu.RUnlock()
		return ds, err
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check under lock
	if m.done {
		return m.ds, m.err
	}

	// The outcome is cached for the process; ignore this caller's cancellation.
	start := time.Now()
	ds, err := m.load(context.WithoutCancel(ctx))
	m.done = true
	if err != nil {
		m.err = fmt.Errorf("%w: %v", apperrors.ErrDatasetUnavailable, err)
		m.logger.Error("dataset load failed", "error", err)
		return nil, m.err
	}

	m.ds = ds
	m.loadedAt = time.Now()
	m.logger.Info("dataset ready", "records", ds.Len(), "duration", time.Since(start))
	return m.ds, nil
}

func (m *DatasetManager) load(ctx context.Context) (*dataset.Dataset, error) {
	if m.source == nil {
		return nil, fmt.Errorf("no dataset source configured")
	}
	ds, err := m.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, fmt.Errorf("source returned no dataset")
	}
	return ds, nil
}

// Status reports the current load state without triggering a load.
func (m *DatasetManager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{Loaded: m.done && m.err == nil, Failed: m.err != nil}
	if m.err != nil {
		st.Error = m.err.Error()
	}
	if m.ds != nil {
		st.Records = m.ds.Len()
		st.LoadedAt = m.loadedAt
	}
	return st
}
