package filebased

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/account-generator/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBackend(t *testing.T, cfg Config) *Backend {
	t.Helper()
	b, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, b.Open())
	t.Cleanup(func() { b.Close() })
	return b
}

func TestConfigValidate(t *testing.T) {
	err := (&Config{}).Validate()
	require.ErrorIs(t, err, interfaces.ErrInvalidConfig)

	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	err = (&Config{OutputDirectory: file}).Validate()
	require.ErrorIs(t, err, interfaces.ErrInvalidConfig)

	require.NoError(t, (&Config{OutputDirectory: t.TempDir()}).Validate())
}

func TestGenerateWithConfiguredPassword(t *testing.T) {
	dir := t.TempDir()
	b := openBackend(t, Config{OutputDirectory: dir, Password: "correct horse", LightKDF: true})

	account, err := b.Generate()
	require.NoError(t, err)

	assert.Equal(t, BackendName, account.Backend)
	assert.Contains(t, account.KeyReference, "keystore://")

	keyFile := account.Metadata["keyFile"]
	assert.Equal(t, dir, filepath.Dir(keyFile))

	keyJSON, err := os.ReadFile(keyFile)
	require.NoError(t, err)
	key, err := keystore.DecryptKey(keyJSON, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, account.Address, crypto.PubkeyToAddress(key.PrivateKey.PublicKey))

	password, err := os.ReadFile(account.Metadata["passwordFile"])
	require.NoError(t, err)
	assert.Equal(t, "correct horse", string(password))

	fi, err := os.Stat(account.Metadata["passwordFile"])
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestGenerateWithRandomPassword(t *testing.T) {
	b := openBackend(t, Config{OutputDirectory: t.TempDir(), LightKDF: true})

	first, err := b.Generate()
	require.NoError(t, err)
	second, err := b.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, first.Address, second.Address)

	pw1, err := os.ReadFile(first.Metadata["passwordFile"])
	require.NoError(t, err)
	pw2, err := os.ReadFile(second.Metadata["passwordFile"])
	require.NoError(t, err)
	assert.Len(t, pw1, 2*generatedPassBytes)
	assert.NotEqual(t, pw1, pw2)

	keyJSON, err := os.ReadFile(first.Metadata["keyFile"])
	require.NoError(t, err)
	_, err = keystore.DecryptKey(keyJSON, string(pw1))
	require.NoError(t, err)
}

func TestOpenCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "keys")
	openBackend(t, Config{OutputDirectory: dir, LightKDF: true})

	fi, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "write probe must be removed")
}

func TestGenerateBeforeOpen(t *testing.T) {
	b, err := New(Config{OutputDirectory: t.TempDir()})
	require.NoError(t, err)

	_, err = b.Generate()
	require.Error(t, err)
}
