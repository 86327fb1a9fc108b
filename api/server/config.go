package server

import (
	"log/slog"
	"time"
)

// HTTPServerConfig contains all configuration parameters for the HTTP server.
type HTTPServerConfig struct {
	// ListenAddr is the host:port the JSON-RPC server listens on. Port 0
	// picks a free port, see Server.Addr.
	ListenAddr string

	// MetricsAddr is the address and port for the metrics server.
	// If empty, metrics server will not be started.
	MetricsAddr string

	// EnablePprof enables the pprof debugging API when true.
	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is the time to wait after marking server not ready
	// before shutting down, allowing load balancers to detect the change.
	DrainDuration time.Duration

	// GracefulShutdownDuration is the maximum time to wait for in-flight
	// requests to complete during shutdown.
	GracefulShutdownDuration time.Duration

	ReadTimeout time.Duration

	// WriteTimeout bounds a whole request including the wait for a worker
	// and for the generator lock. Zero disables it; a non-zero value shorter
	// than the queue wait drops connections of requests still being served.
	WriteTimeout time.Duration
}
