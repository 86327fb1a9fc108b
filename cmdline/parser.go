package cmdline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ruteri/account-generator/accountgenerator"
	"github.com/ruteri/account-generator/cmd/flags"
	"github.com/ruteri/account-generator/common"
	"github.com/ruteri/account-generator/credentials"
	"github.com/ruteri/account-generator/generator"
	"github.com/ruteri/account-generator/interfaces"
	"github.com/urfave/cli/v2"
	"github.com/xrash/smetrics"
)

const (
	ExitCodeOK             = 0
	ExitCodeExecutionError = 1
	ExitCodeInvalidInput   = 2
)

const minSuggestionScore = 0.8

const (
	MissingSubcommandError = "Generator subcommand must be defined."
	GeneratorCreationError = "Failed to construct a generator from supplied arguments."
	StartupFailureError    = "Failed to initialize AccountGenerator"
	UnrecoverableError     = "AccountGenerator has suffered an unrecoverable failure"
)

// GeneratorCommand is one generator sub-command. NewBackend validates the
// sub-command flags and returns errors wrapping interfaces.ErrInvalidConfig
// for bad input.
type GeneratorCommand interface {
	Name() string
	Usage() string
	Flags() []cli.Flag
	NewBackend(cCtx *cli.Context, resolver *credentials.Resolver, log *slog.Logger) (interfaces.GeneratorBackend, error)
}

// Runner runs the service until ctx ends.
type Runner func(ctx context.Context, cfg accountgenerator.Config, factory *generator.Factory, log *slog.Logger) error

func runAccountGenerator(ctx context.Context, cfg accountgenerator.Config, factory *generator.Factory, log *slog.Logger) error {
	return accountgenerator.New(cfg, factory, log).Run(ctx)
}

type Parser struct {
	out       io.Writer
	errOut    io.Writer
	logOutput io.Writer
	run       Runner
	commands  []GeneratorCommand
}

type Option func(*Parser)

func WithRunner(run Runner) Option {
	return func(p *Parser) {
		p.run = run
	}
}

// WithLogOutput redirects the process logger, stdout by default.
func WithLogOutput(w io.Writer) Option {
	return func(p *Parser) {
		p.logOutput = w
	}
}

// NewParser prints usage to out and diagnostics to errOut.
func NewParser(out, errOut io.Writer, opts ...Option) *Parser {
	p := &Parser{
		out:    out,
		errOut: errOut,
		run:    runAccountGenerator,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Parser) RegisterGenerator(c GeneratorCommand) {
	p.commands = append(p.commands, c)
}

// Parse runs the command line and returns the process exit code.
func (p *Parser) Parse(ctx context.Context, args ...string) int {
	app := &cli.App{
		Name:            common.PackageName,
		Usage:           "Generate Ethereum accounts on request over JSON-RPC",
		Version:         common.Version,
		Flags:           flags.GlobalFlags(),
		Writer:          p.out,
		ErrWriter:       p.errOut,
		HideHelpCommand: true,
		ExitErrHandler:  func(*cli.Context, error) {},
		OnUsageError:    p.onUsageError,
		Action:          p.rootAction,
	}

	for _, c := range p.commands {
		app.Commands = append(app.Commands, &cli.Command{
			Name:         c.Name(),
			Usage:        c.Usage(),
			Flags:        c.Flags(),
			OnUsageError: p.onUsageError,
			Action:       p.commandAction(c),
		})
	}

	err := app.RunContext(ctx, append([]string{common.PackageName}, args...))
	if err == nil {
		return ExitCodeOK
	}

	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	fmt.Fprintln(p.errOut, err)
	return ExitCodeExecutionError
}

func (p *Parser) rootAction(cCtx *cli.Context) error {
	if cCtx.NArg() == 0 {
		fmt.Fprintln(p.errOut, MissingSubcommandError)
		cli.ShowAppHelp(cCtx)
		return cli.Exit("", ExitCodeInvalidInput)
	}
	return p.unmatchedArgument(cCtx, cCtx.Args().First(), false)
}

func (p *Parser) unmatchedArgument(cCtx *cli.Context, arg string, isSubcommand bool) error {
	fmt.Fprintf(p.errOut, "Unmatched argument: '%s'\n", arg)
	if !isSubcommand {
		if suggestion := p.suggestGenerator(arg); suggestion != "" {
			fmt.Fprintf(p.out, "Did you mean %q?\n", suggestion)
		}
	}
	p.showUsage(cCtx, isSubcommand)
	return cli.Exit("", ExitCodeInvalidInput)
}

// suggestGenerator returns the registered generator closest to arg, or ""
// when none is similar enough.
func (p *Parser) suggestGenerator(arg string) string {
	var (
		best  string
		score = minSuggestionScore
	)
	for _, c := range p.commands {
		if s := smetrics.JaroWinkler(arg, c.Name(), 0.7, 4); s >= score {
			best, score = c.Name(), s
		}
	}
	return best
}

func (p *Parser) onUsageError(cCtx *cli.Context, err error, isSubcommand bool) error {
	p.printDetails(cCtx, err)
	fmt.Fprintln(p.errOut, err)
	p.showUsage(cCtx, isSubcommand)
	return cli.Exit("", ExitCodeInvalidInput)
}

func (p *Parser) showUsage(cCtx *cli.Context, isSubcommand bool) {
	if isSubcommand {
		cli.ShowSubcommandHelp(cCtx)
		return
	}
	cli.ShowAppHelp(cCtx)
}

func (p *Parser) commandAction(c GeneratorCommand) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		if cCtx.NArg() > 0 {
			return p.unmatchedArgument(cCtx, cCtx.Args().First(), true)
		}

		log, err := flags.SetupLogger(cCtx, p.logOutput)
		if err != nil {
			return p.invalidInput(cCtx, err)
		}

		resolver, err := credentials.NewResolver(flags.VaultConfig(cCtx), log)
		if err != nil {
			return p.invalidInput(cCtx, err)
		}

		serverCfg, err := flags.ConfigureServer(cCtx, log)
		if err != nil {
			return p.invalidInput(cCtx, err)
		}

		backend, err := c.NewBackend(cCtx, resolver, log)
		if err != nil {
			if errors.Is(err, interfaces.ErrInvalidConfig) {
				return p.invalidInput(cCtx, err)
			}
			return p.executionFailure(cCtx, log, &interfaces.InitializationError{Backend: c.Name(), Cause: err})
		}

		factory := generator.NewFactory(backend, generator.WithLogger(log))
		cfg := accountgenerator.Config{
			HTTPServer:      serverCfg,
			WorkerPoolSize:  cCtx.Int(flags.WorkerPoolSizeFlagName),
			WorkerQueueSize: cCtx.Int(flags.WorkerQueueSizeFlagName),
			LedgerPath:      cCtx.String(flags.LedgerDBFlagName),
		}

		if err := p.run(cCtx.Context, cfg, factory, log); err != nil {
			return p.executionFailure(cCtx, log, err)
		}
		return nil
	}
}

func (p *Parser) invalidInput(cCtx *cli.Context, err error) error {
	p.printDetails(cCtx, err)
	fmt.Fprintln(p.errOut, err)
	cli.ShowSubcommandHelp(cCtx)
	return cli.Exit("", ExitCodeInvalidInput)
}

func (p *Parser) executionFailure(cCtx *cli.Context, log *slog.Logger, err error) error {
	if errors.Is(err, interfaces.ErrInvalidConfig) {
		return p.invalidInput(cCtx, err)
	}
	p.printDetails(cCtx, err)

	var (
		initErr    *interfaces.InitializationError
		startupErr *interfaces.StartupError
	)
	switch {
	case errors.As(err, &initErr):
		fmt.Fprintln(p.errOut, GeneratorCreationError)
		fmt.Fprintln(p.errOut, "Cause: "+initErr.Cause.Error())
	case errors.As(err, &startupErr):
		fmt.Fprintln(p.errOut, StartupFailureError)
		fmt.Fprintln(p.errOut, "Cause: "+startupErr.Cause.Error())
	default:
		log.Error(UnrecoverableError, "err", err)
		fmt.Fprintln(p.errOut, UnrecoverableError+" "+err.Error())
	}

	cli.ShowSubcommandHelp(cCtx)
	return cli.Exit("", ExitCodeExecutionError)
}

// printDetails writes the full error chain when --log-level is debug.
func (p *Parser) printDetails(cCtx *cli.Context, err error) {
	if !flags.IsDebug(cCtx) {
		return
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(p.errOut, "  %T: %v\n", e, e)
	}
}
