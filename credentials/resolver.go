// Package credentials resolves secret references given on the command line
// (PINs, keystore passwords) so that secrets need not appear in process
// arguments.
//
// Supported forms:
//
//	env:NAME                 value of environment variable NAME
//	file:/path/to/secret     file contents, trailing newline removed
//	vault:mount/path#field   field of a Vault KV v2 secret
//	anything else            the literal value
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/account-generator/interfaces"
)

const (
	envPrefix   = "env:"
	filePrefix  = "file:"
	vaultPrefix = "vault:"
)

var (
	ErrVaultNotConfigured = errors.New("vault reference used but no vault address configured")
	ErrSecretNotFound     = errors.New("secret not found")
)

type VaultConfig struct {
	Address string
	Token   string
}

type Resolver struct {
	vault *api.Client
	log   *slog.Logger
}

// NewResolver builds a resolver. A Vault client is only created when an
// address is configured.
func NewResolver(cfg VaultConfig, log *slog.Logger) (*Resolver, error) {
	if cfg.Address == "" {
		return &Resolver{log: log}, nil
	}

	config := api.DefaultConfig()
	config.Address = cfg.Address
	config.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	return NewResolverWithClient(client, log), nil
}

func NewResolverWithClient(client *api.Client, log *slog.Logger) *Resolver {
	return &Resolver{vault: client, log: log}
}

// Resolve returns the secret ref points to. Malformed references wrap
// interfaces.ErrInvalidConfig.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, envPrefix):
		name := strings.TrimPrefix(ref, envPrefix)
		if name == "" {
			return "", fmt.Errorf("%w: empty environment variable name", interfaces.ErrInvalidConfig)
		}
		value, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("%w: environment variable %s is not set", ErrSecretNotFound, name)
		}
		return value, nil

	case strings.HasPrefix(ref, filePrefix):
		path := strings.TrimPrefix(ref, filePrefix)
		if path == "" {
			return "", fmt.Errorf("%w: empty file path", interfaces.ErrInvalidConfig)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading secret file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil

	case strings.HasPrefix(ref, vaultPrefix):
		return r.resolveVault(ctx, strings.TrimPrefix(ref, vaultPrefix))
	}

	return ref, nil
}

func (r *Resolver) resolveVault(ctx context.Context, ref string) (string, error) {
	location, field, ok := strings.Cut(ref, "#")
	mount, dataPath, hasPath := strings.Cut(strings.Trim(location, "/"), "/")
	if !ok || field == "" || !hasPath || mount == "" || dataPath == "" {
		return "", fmt.Errorf("%w: vault reference must look like vault:mount/path#field", interfaces.ErrInvalidConfig)
	}
	if r.vault == nil {
		return "", ErrVaultNotConfigured
	}

	// KV v2 path structure
	path := fmt.Sprintf("%s/data/%s", mount, dataPath)

	secret, err := r.vault.Logical().ReadWithContext(ctx, path)
	if err != nil {
		r.log.Error("Failed to read from Vault", slog.String("path", path), "err", err)
		return "", fmt.Errorf("reading %s from vault: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid data format in Vault response for %s", path)
	}

	value, ok := data[field].(string)
	if !ok {
		return "", fmt.Errorf("%w: field %s in %s", ErrSecretNotFound, field, path)
	}
	return value, nil
}
