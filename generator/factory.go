// Package generator owns the lifecycle of a key generation backend and is the
// only way request handlers reach it.
package generator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/account-generator/common"
	"github.com/ruteri/account-generator/interfaces"
	"github.com/ruteri/account-generator/metrics"
)

type state int

const (
	stateUninitialized state = iota
	stateInitialized
	stateShutdown
)

func (s state) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateInitialized:
		return "initialized"
	case stateShutdown:
		return "shutdown"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Factory wraps a single GeneratorBackend. Initialize must succeed before the
// first Generate; Shutdown releases the backend and is safe to call more than
// once. All backend calls happen under one mutex, so at most one generation
// reaches the backend at any time regardless of how many workers call in.
type Factory struct {
	mu      sync.Mutex
	backend interfaces.GeneratorBackend
	state   state

	log *slog.Logger

	observersMu sync.RWMutex
	observers   []interfaces.AccountObserver
}

type Option func(*Factory)

func WithLogger(log *slog.Logger) Option {
	return func(f *Factory) {
		f.log = log
	}
}

func WithObserver(o interfaces.AccountObserver) Option {
	return func(f *Factory) {
		f.observers = append(f.observers, o)
	}
}

func NewFactory(backend interfaces.GeneratorBackend, opts ...Option) *Factory {
	f := &Factory{
		backend: backend,
		log:     common.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.With("backend", backend.Name())
	return f
}

// AddObserver registers an observer after construction, e.g. once the ledger
// has been opened.
func (f *Factory) AddObserver(o interfaces.AccountObserver) {
	f.observersMu.Lock()
	defer f.observersMu.Unlock()
	f.observers = append(f.observers, o)
}

func (f *Factory) BackendName() string {
	return f.backend.Name()
}

// Initialize opens the backend. Failures are wrapped in an
// InitializationError and leave the factory uninitialized.
func (f *Factory) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case stateInitialized:
		return interfaces.ErrAlreadyInitialized
	case stateShutdown:
		return interfaces.ErrGeneratorShutdown
	}

	f.log.Info("Initializing key generator")
	if err := f.backend.Open(); err != nil {
		f.log.Error("Failed to initialize key generator", "err", err)
		return &interfaces.InitializationError{Backend: f.backend.Name(), Cause: err}
	}

	f.state = stateInitialized
	f.log.Info("Key generator initialized")
	return nil
}

// Generator returns the factory itself as a KeyGenerator. The returned value
// stays valid across Shutdown and reports ErrGeneratorNotInitialized from then on.
func (f *Factory) Generator() interfaces.KeyGenerator {
	return f
}

func (f *Factory) Generate() (*interfaces.Account, error) {
	account, err := f.generate()
	if err != nil {
		return nil, err
	}

	f.observersMu.RLock()
	observers := f.observers
	f.observersMu.RUnlock()
	for _, o := range observers {
		o.AccountGenerated(account)
	}

	return account, nil
}

func (f *Factory) generate() (*interfaces.Account, error) {
	start := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != stateInitialized {
		return nil, interfaces.ErrGeneratorNotInitialized
	}

	account, err := f.backend.Generate()
	metrics.RecordGeneration(f.backend.Name(), start, err)
	if err != nil {
		f.log.Error("Account generation failed", "err", err)
		return nil, &interfaces.GenerationError{Backend: f.backend.Name(), Cause: err}
	}

	if account.Backend == "" {
		account.Backend = f.backend.Name()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	f.log.Info("Generated account", "address", account.Address.Hex())
	return account, nil
}

// Shutdown waits for an in-flight generation to finish and closes the
// backend. A factory that was never initialized does not touch the backend.
func (f *Factory) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.state
	f.state = stateShutdown
	if prev != stateInitialized {
		return nil
	}

	f.log.Info("Shutting down key generator")
	if err := f.backend.Close(); err != nil {
		f.log.Error("Failed to close key generator backend", "err", err)
		return fmt.Errorf("closing %s backend: %w", f.backend.Name(), err)
	}
	return nil
}
