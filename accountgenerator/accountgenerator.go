// Package accountgenerator assembles the running service: it initializes the
// key generator, registers the RPC methods and serves them until its context
// ends.
package accountgenerator

import (
	"context"
	"errors"
	"log/slog"
	"runtime"

	"github.com/ruteri/account-generator/api/rpchandlers"
	"github.com/ruteri/account-generator/api/server"
	"github.com/ruteri/account-generator/generator"
	"github.com/ruteri/account-generator/interfaces"
	"github.com/ruteri/account-generator/jsonrpc"
	"github.com/ruteri/account-generator/ledger"
	"github.com/ruteri/account-generator/workerpool"
)

const DefaultWorkerQueueSize = 64

type Config struct {
	HTTPServer *server.HTTPServerConfig

	// WorkerPoolSize defaults to runtime.NumCPU().
	WorkerPoolSize  int
	WorkerQueueSize int

	// LedgerPath enables the account ledger and the listAccounts method.
	LedgerPath string
}

// AccountGenerator is the process context: it owns the logger, the factory,
// the method mapper and, while running, the server and worker pool.
type AccountGenerator struct {
	cfg     Config
	factory *generator.Factory
	mapper  *jsonrpc.RequestMapper
	log     *slog.Logger

	// started is closed once the listener is bound.
	started chan struct{}
	srv     *server.Server
}

func New(cfg Config, factory *generator.Factory, log *slog.Logger) *AccountGenerator {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = runtime.NumCPU()
	}
	if cfg.WorkerQueueSize < 0 {
		cfg.WorkerQueueSize = DefaultWorkerQueueSize
	}

	return &AccountGenerator{
		cfg:     cfg,
		factory: factory,
		mapper:  jsonrpc.NewRequestMapper(),
		log:     log,
		started: make(chan struct{}),
	}
}

// Run blocks until ctx is done. The generator is initialized before anything
// listens; an initialization failure is returned as
// *interfaces.InitializationError and nothing is left running.
func (a *AccountGenerator) Run(ctx context.Context) (err error) {
	var lister rpchandlers.AccountLister
	if a.cfg.LedgerPath != "" {
		l, err := ledger.Open(a.cfg.LedgerPath, a.log.With("component", "ledger"))
		if err != nil {
			return &interfaces.StartupError{Stage: "account ledger", Cause: err}
		}
		defer l.Close()
		a.factory.AddObserver(l)
		lister = l
	}

	if err := a.factory.Initialize(); err != nil {
		return err
	}
	defer func() {
		if shutdownErr := a.factory.Shutdown(); shutdownErr != nil {
			err = errors.Join(err, shutdownErr)
		}
	}()

	rpchandlers.Register(a.mapper, a.factory, lister, a.log)
	a.mapper.Freeze()
	a.log.Info("Registered JSON-RPC methods", "methods", a.mapper.Methods())

	pool := workerpool.New(a.cfg.WorkerPoolSize, a.cfg.WorkerQueueSize, a.log.With("component", "workerpool"))
	defer pool.Close()

	dispatcher := jsonrpc.NewDispatcher(a.mapper, pool, a.log.With("component", "jsonrpc"))
	srv, err := server.New(a.cfg.HTTPServer, dispatcher)
	if err != nil {
		return &interfaces.StartupError{Stage: "http server", Cause: err}
	}
	if err := srv.RunInBackground(); err != nil {
		return &interfaces.StartupError{Stage: "http server", Cause: err}
	}
	a.srv = srv
	close(a.started)

	a.log.Info("AccountGenerator is running", "backend", a.factory.BackendName(), "listenAddress", srv.Addr().String())
	<-ctx.Done()
	a.log.Info("Shutdown signal received")

	// Stop accepting requests first; the deferred pool and factory shutdowns
	// then run once every in-flight generation has completed.
	srv.Shutdown()
	a.log.Info("AccountGenerator stopped")
	return nil
}

// Started is closed once the server is accepting connections.
func (a *AccountGenerator) Started() <-chan struct{} {
	return a.started
}

// Server returns the running server; valid after Started is closed.
func (a *AccountGenerator) Server() *server.Server {
	return a.srv
}
