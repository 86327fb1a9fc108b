package flags

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/account-generator/api/server"
	"github.com/ruteri/account-generator/common"
	"github.com/ruteri/account-generator/credentials"
	"github.com/ruteri/account-generator/interfaces"
	"github.com/urfave/cli/v2"
)

const envPrefix = "ACCOUNTGENERATOR_"

func envVars(name string) []string {
	return []string{envPrefix + name}
}

// SetupLogger builds the process logger from the global logging flags.
func SetupLogger(cCtx *cli.Context, out io.Writer) (log *slog.Logger, err error) {
	level, err := common.ParseLogLevel(cCtx.String(LogLevelFlagName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidConfig, err)
	}

	logger := common.SetupLogger(&common.LoggingOpts{
		Level:   level,
		JSON:    cCtx.Bool(LogJSONFlagName),
		Service: cCtx.String(LogServiceFlagName),
		Version: common.Version,
		Output:  out,
	})

	if cCtx.Bool(LogUIDFlagName) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger, nil
}

// IsDebug reports whether --log-level asks for debug output.
func IsDebug(cCtx *cli.Context) bool {
	level, err := common.ParseLogLevel(cCtx.String(LogLevelFlagName))
	return err == nil && level <= slog.LevelDebug
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) (*server.HTTPServerConfig, error) {
	port := cCtx.Int(HTTPListenPortFlagName)
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: invalid listen port %d", interfaces.ErrInvalidConfig, port)
	}
	listenAddr := net.JoinHostPort(cCtx.String(HTTPListenHostFlagName), strconv.Itoa(port))
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlagName)) * time.Second
	writeTimeout := cCtx.Duration(HTTPWriteTimeoutFlagName)
	if writeTimeout < 0 {
		return nil, fmt.Errorf("%w: invalid write timeout %s", interfaces.ErrInvalidConfig, writeTimeout)
	}

	return &server.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              cCtx.String(MetricsAddrFlagName),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlagName),
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             writeTimeout,
	}, nil
}

func VaultConfig(cCtx *cli.Context) credentials.VaultConfig {
	return credentials.VaultConfig{
		Address: cCtx.String(VaultAddrFlagName),
		Token:   cCtx.String(VaultTokenFlagName),
	}
}

const (
	HTTPListenHostFlagName   = "http-listen-host"
	HTTPListenPortFlagName   = "http-listen-port"
	HTTPWriteTimeoutFlagName = "http-write-timeout"
	LogLevelFlagName         = "log-level"
	LogJSONFlagName          = "log-json"
	LogUIDFlagName           = "log-uid"
	LogServiceFlagName       = "log-service"
	PprofFlagName            = "pprof"
	DrainSecondsFlagName     = "drain-seconds"
	MetricsAddrFlagName      = "metrics-addr"
	WorkerPoolSizeFlagName   = "worker-pool-size"
	WorkerQueueSizeFlagName  = "worker-queue-size"
	LedgerDBFlagName         = "ledger-db"
	VaultAddrFlagName        = "vault-addr"
	VaultTokenFlagName       = "vault-token"
)

// GlobalFlags returns freshly allocated flags; urfave/cli keeps parse state
// on flag values, so they are not shared between runs.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    HTTPListenHostFlagName,
			Value:   "127.0.0.1",
			Usage:   "host to listen on for JSON-RPC requests",
			EnvVars: envVars("HTTP_LISTEN_HOST"),
		},
		&cli.IntFlag{
			Name:    HTTPListenPortFlagName,
			Value:   9000,
			Usage:   "port to listen on for JSON-RPC requests, 0 picks a free port",
			EnvVars: envVars("HTTP_LISTEN_PORT"),
		},
		&cli.DurationFlag{
			Name:    HTTPWriteTimeoutFlagName,
			Usage:   "limit on handling a JSON-RPC request including time queued behind other generations, 0 disables",
			EnvVars: envVars("HTTP_WRITE_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    LogLevelFlagName,
			Value:   "info",
			Usage:   "log level: debug, info, warn or error",
			EnvVars: envVars("LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:  LogJSONFlagName,
			Value: false,
			Usage: "log in JSON format",
		},
		&cli.BoolFlag{
			Name:  LogUIDFlagName,
			Value: false,
			Usage: "generate a uuid and add to all log messages",
		},
		LogServiceFlagFn(common.PackageName),
		&cli.BoolFlag{
			Name:  PprofFlagName,
			Value: false,
			Usage: "enable pprof debug endpoint",
		},
		&cli.Int64Flag{
			Name:  DrainSecondsFlagName,
			Value: 45,
			Usage: "seconds to wait in drain HTTP request",
		},
		&cli.StringFlag{
			Name:    MetricsAddrFlagName,
			Usage:   "address to listen on for Prometheus metrics, disabled when empty",
			EnvVars: envVars("METRICS_ADDR"),
		},
		&cli.IntFlag{
			Name:  WorkerPoolSizeFlagName,
			Usage: "number of workers executing RPC handlers (default: number of CPUs)",
		},
		&cli.IntFlag{
			Name:  WorkerQueueSizeFlagName,
			Value: 64,
			Usage: "RPC requests waiting for a worker before callers block",
		},
		&cli.StringFlag{
			Name:    LedgerDBFlagName,
			Usage:   "SQLite database recording generated accounts; enables listAccounts",
			EnvVars: envVars("LEDGER_DB"),
		},
		&cli.StringFlag{
			Name:    VaultAddrFlagName,
			Usage:   "Vault address used to resolve vault: credential references",
			EnvVars: []string{envPrefix + "VAULT_ADDR", "VAULT_ADDR"},
		},
		&cli.StringFlag{
			Name:    VaultTokenFlagName,
			Usage:   "Vault token used to resolve vault: credential references",
			EnvVars: []string{envPrefix + "VAULT_TOKEN", "VAULT_TOKEN"},
		},
	}
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  LogServiceFlagName,
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}
