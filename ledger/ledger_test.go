package ledger

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/account-generator/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func account(n byte, createdAt time.Time) *interfaces.Account {
	var addr common.Address
	addr[19] = n
	return &interfaces.Account{
		Address:      addr,
		KeyReference: "ref",
		Backend:      "file-based",
		CreatedAt:    createdAt,
		Metadata:     map[string]string{"keyFile": "/tmp/key"},
	}
}

func TestRecordAndList(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := byte(1); i <= 3; i++ {
		require.NoError(t, l.Record(ctx, account(i, base.Add(time.Duration(i)*time.Minute))))
	}

	accounts, err := l.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, byte(3), accounts[0].Address[19], "newest first")
	assert.Equal(t, base.Add(3*time.Minute), accounts[0].CreatedAt)
	assert.Equal(t, "/tmp/key", accounts[0].Metadata["keyFile"])

	accounts, err = l.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDuplicateAddressRejected(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, account(1, time.Now())))
	require.Error(t, l.Record(ctx, account(1, time.Now())))
}

func TestAccountGeneratedObserver(t *testing.T) {
	l := openLedger(t)

	l.AccountGenerated(account(9, time.Now()))
	l.AccountGenerated(account(9, time.Now())) // logged, not fatal

	n, err := l.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEmptyList(t *testing.T) {
	l := openLedger(t)
	accounts, err := l.List(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, accounts)
	assert.Empty(t, accounts)
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	l, err := Open(path, log)
	require.NoError(t, err)
	require.NoError(t, l.Record(context.Background(), account(1, time.Now())))
	require.NoError(t, l.Close())

	l, err = Open(path, log)
	require.NoError(t, err)
	defer l.Close()
	n, err := l.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListOrdersWithinSecond(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)

	require.NoError(t, l.Record(ctx, account(1, base)))
	require.NoError(t, l.Record(ctx, account(2, base.Add(500*time.Millisecond))))
	require.NoError(t, l.Record(ctx, account(3, base.Add(20*time.Millisecond))))
	require.NoError(t, l.Record(ctx, account(4, base.Add(time.Nanosecond))))

	accounts, err := l.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, accounts, 4)

	var order []byte
	for _, a := range accounts {
		order = append(order, a.Address[19])
	}
	assert.Equal(t, []byte{2, 3, 4, 1}, order)
	assert.True(t, accounts[0].CreatedAt.Equal(base.Add(500*time.Millisecond)))
	assert.True(t, accounts[3].CreatedAt.Equal(base))
}
