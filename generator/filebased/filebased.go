// Package filebased generates secp256k1 keys in software and stores each one
// as an encrypted V3 keystore file next to a password file.
package filebased

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ruteri/account-generator/interfaces"
)

const BackendName = "file-based"

const (
	passwordFileSuffix = ".password"
	generatedPassBytes = 32
)

type Config struct {
	// OutputDirectory receives the keystore and password files.
	OutputDirectory string

	// Password encrypts every keystore file. When empty a random password is
	// generated per account.
	Password string

	// LightKDF trades scrypt strength for speed. Meant for tests and
	// throwaway keys.
	LightKDF bool
}

func (c *Config) Validate() error {
	if c.OutputDirectory == "" {
		return fmt.Errorf("%w: output directory is required", interfaces.ErrInvalidConfig)
	}
	if fi, err := os.Stat(c.OutputDirectory); err == nil && !fi.IsDir() {
		return fmt.Errorf("%w: output directory %s is not a directory", interfaces.ErrInvalidConfig, c.OutputDirectory)
	}
	return nil
}

type Backend struct {
	cfg     Config
	dir     string
	scryptN int
	scryptP int
}

func New(cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Backend{
		cfg:     cfg,
		scryptN: keystore.StandardScryptN,
		scryptP: keystore.StandardScryptP,
	}
	if cfg.LightKDF {
		b.scryptN = keystore.LightScryptN
		b.scryptP = keystore.LightScryptP
	}
	return b, nil
}

func (b *Backend) Name() string {
	return BackendName
}

// Open makes sure the output directory exists and is writable.
func (b *Backend) Open() error {
	dir, err := filepath.Abs(b.cfg.OutputDirectory)
	if err != nil {
		return fmt.Errorf("resolving output directory: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	b.dir = dir
	return nil
}

func (b *Backend) Generate() (*interfaces.Account, error) {
	if b.dir == "" {
		return nil, errors.New("backend is not open")
	}

	password := b.cfg.Password
	if password == "" {
		var err error
		password, err = randomPassword()
		if err != nil {
			return nil, err
		}
	}

	acct, err := keystore.StoreKey(b.dir, password, b.scryptN, b.scryptP)
	if err != nil {
		return nil, fmt.Errorf("storing key: %w", err)
	}

	passwordFile := acct.URL.Path + passwordFileSuffix
	if err := os.WriteFile(passwordFile, []byte(password), 0o600); err != nil {
		// A keystore file nobody can open is worse than none.
		os.Remove(acct.URL.Path)
		return nil, fmt.Errorf("writing password file: %w", err)
	}

	return &interfaces.Account{
		Address:      acct.Address,
		KeyReference: acct.URL.String(),
		Backend:      BackendName,
		CreatedAt:    time.Now().UTC(),
		Metadata: map[string]string{
			"keyFile":      acct.URL.Path,
			"passwordFile": passwordFile,
		},
	}, nil
}

func (b *Backend) Close() error {
	b.dir = ""
	return nil
}

func randomPassword() (string, error) {
	buf := make([]byte, generatedPassBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
