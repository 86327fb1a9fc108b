package cmdline

import (
	"log/slog"

	"github.com/ruteri/account-generator/credentials"
	"github.com/ruteri/account-generator/generator/filebased"
	"github.com/ruteri/account-generator/generator/hsm"
	"github.com/ruteri/account-generator/interfaces"
	"github.com/urfave/cli/v2"
)

// FileBasedCommand generates keys in software and writes keystore files.
type FileBasedCommand struct{}

func (FileBasedCommand) Name() string { return filebased.BackendName }

func (FileBasedCommand) Usage() string {
	return "Generate keys in software and store them as encrypted keystore files"
}

func (FileBasedCommand) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "output-directory",
			Usage:   "directory receiving keystore and password files (required)",
			EnvVars: envVars("OUTPUT_DIRECTORY"),
		},
		&cli.StringFlag{
			Name:    "password",
			Usage:   "keystore password reference (literal, env:NAME, file:PATH or vault:MOUNT/PATH#FIELD); random per account when omitted",
			EnvVars: envVars("PASSWORD"),
		},
		&cli.BoolFlag{
			Name:  "light-kdf",
			Usage: "use light scrypt parameters, faster but weaker",
		},
	}
}

func (FileBasedCommand) NewBackend(cCtx *cli.Context, resolver *credentials.Resolver, _ *slog.Logger) (interfaces.GeneratorBackend, error) {
	cfg := filebased.Config{
		OutputDirectory: cCtx.String("output-directory"),
		LightKDF:        cCtx.Bool("light-kdf"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if ref := cCtx.String("password"); ref != "" {
		password, err := resolver.Resolve(cCtx.Context, ref)
		if err != nil {
			return nil, err
		}
		cfg.Password = password
	}

	return filebased.New(cfg)
}

// HSMBasedCommand generates keys inside a PKCS#11 token.
type HSMBasedCommand struct {
	// Loader overrides how the PKCS#11 library is loaded.
	Loader hsm.ModuleLoader
}

func (HSMBasedCommand) Name() string { return hsm.BackendName }

func (HSMBasedCommand) Usage() string {
	return "Generate keys inside a PKCS#11 hardware security module"
}

func (HSMBasedCommand) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "library",
			Usage:   "path of the PKCS#11 module (required)",
			EnvVars: envVars("HSM_LIBRARY"),
		},
		&cli.StringFlag{
			Name:    "slot",
			Usage:   "slot id, or label:<token label> (required)",
			EnvVars: envVars("HSM_SLOT"),
		},
		&cli.StringFlag{
			Name:    "pin",
			Usage:   "user PIN reference (literal, env:NAME, file:PATH or vault:MOUNT/PATH#FIELD) (required)",
			EnvVars: envVars("HSM_PIN"),
		},
	}
}

func (c HSMBasedCommand) NewBackend(cCtx *cli.Context, resolver *credentials.Resolver, _ *slog.Logger) (interfaces.GeneratorBackend, error) {
	cfg := hsm.Config{
		Library: cCtx.String("library"),
		Slot:    cCtx.String("slot"),
		// Holds the reference until resolved below.
		PIN: cCtx.String("pin"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pin, err := resolver.Resolve(cCtx.Context, cfg.PIN)
	if err != nil {
		return nil, err
	}
	cfg.PIN = pin

	return hsm.New(cfg, c.Loader)
}

func envVars(name string) []string {
	return []string{"ACCOUNTGENERATOR_" + name}
}
