package accountgenerator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/account-generator/api/server"
	"github.com/ruteri/account-generator/generator"
	"github.com/ruteri/account-generator/generator/filebased"
	"github.com/ruteri/account-generator/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testServerConfig() *server.HTTPServerConfig {
	return &server.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      testLogger(),
		GracefulShutdownDuration: 5 * time.Second,
		ReadTimeout:              5 * time.Second,
	}
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int `json:"code"`
	} `json:"error"`
	ID json.RawMessage `json:"id"`
}

func post(t *testing.T, addr, body string) (int, *rpcResponse) {
	t.Helper()
	resp, err := http.Post("http://"+addr+"/", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, &out
}

func start(t *testing.T, ag *AccountGenerator) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ag.Run(ctx) }()

	select {
	case <-ag.Started():
	case err := <-done:
		cancel()
		t.Fatalf("account generator exited early: %v", err)
	case <-time.After(10 * time.Second):
		cancel()
		t.Fatal("account generator did not start")
	}
	return cancel, done
}

func TestFileBasedEndToEnd(t *testing.T) {
	backend, err := filebased.New(filebased.Config{OutputDirectory: t.TempDir(), LightKDF: true})
	require.NoError(t, err)
	factory := generator.NewFactory(backend, generator.WithLogger(testLogger()))

	ag := New(Config{
		HTTPServer:      testServerConfig(),
		WorkerPoolSize:  2,
		WorkerQueueSize: 4,
		LedgerPath:      filepath.Join(t.TempDir(), "ledger.db"),
	}, factory, testLogger())

	cancel, done := start(t, ag)
	addr := ag.Server().Addr().String()

	status, resp := post(t, addr, `{"method":"generateAccount","params":{},"id":1}`)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `1`, string(resp.ID))

	var account interfaces.Account
	require.NoError(t, json.Unmarshal(resp.Result, &account))
	assert.NotEqual(t, common.Address{}, account.Address)
	assert.Equal(t, filebased.BackendName, account.Backend)

	status, resp = post(t, addr, `{"jsonrpc":"2.0","method":"listAccounts","id":2}`)
	require.Equal(t, http.StatusOK, status)
	var listed []interfaces.Account
	require.NoError(t, json.Unmarshal(resp.Result, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, account.Address, listed[0].Address)

	status, resp = post(t, addr, `{"jsonrpc":"2.0","method":"generateAccount"`)
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)

	cancel()
	require.NoError(t, <-done)

	_, err = factory.Generate()
	require.ErrorIs(t, err, interfaces.ErrGeneratorNotInitialized)
}

func TestInitializationFailureStartsNothing(t *testing.T) {
	backend := &generator.MockBackend{}
	backend.On("Name").Return("mock").Maybe()
	backend.On("Open").Return(errors.New("CKR_PIN_INCORRECT"))

	ag := New(Config{HTTPServer: testServerConfig()}, generator.NewFactory(backend), testLogger())

	err := ag.Run(context.Background())
	var initErr *interfaces.InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.Nil(t, ag.Server())

	select {
	case <-ag.Started():
		t.Fatal("server must not start when initialization fails")
	default:
	}
	backend.AssertNotCalled(t, "Close")
}

func TestLedgerFailureIsStartupError(t *testing.T) {
	backend := &generator.MockBackend{}
	backend.On("Name").Return("mock").Maybe()

	ag := New(Config{
		HTTPServer: testServerConfig(),
		LedgerPath: filepath.Join(t.TempDir(), "missing", "dir", "ledger.db"),
	}, generator.NewFactory(backend), testLogger())

	err := ag.Run(context.Background())
	var startupErr *interfaces.StartupError
	require.ErrorAs(t, err, &startupErr)
	backend.AssertNotCalled(t, "Open")
}

type slowBackend struct {
	delay     time.Duration
	generated atomic.Int64
}

func (b *slowBackend) Name() string { return "slow" }
func (b *slowBackend) Open() error  { return nil }
func (b *slowBackend) Close() error { return nil }

func (b *slowBackend) Generate() (*interfaces.Account, error) {
	time.Sleep(b.delay)
	n := b.generated.Inc()
	return &interfaces.Account{Address: common.BigToAddress(big.NewInt(n))}, nil
}

// Callers queued behind serialized generation wait longer than any single
// generation; each of them still gets its response.
func TestQueuedCallersAllAnswered(t *testing.T) {
	const callers = 6
	backend := &slowBackend{delay: 150 * time.Millisecond}

	ag := New(Config{
		HTTPServer:      testServerConfig(),
		WorkerPoolSize:  callers,
		WorkerQueueSize: callers,
	}, generator.NewFactory(backend, generator.WithLogger(testLogger())), testLogger())

	cancel, done := start(t, ag)
	addr := ag.Server().Addr().String()

	type result struct {
		status int
		resp   rpcResponse
		err    error
	}
	results := make(chan result, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var res result
			resp, err := http.Post("http://"+addr+"/", "application/json",
				bytes.NewBufferString(`{"jsonrpc":"2.0","method":"generateAccount","id":1}`))
			if err != nil {
				res.err = err
				results <- res
				return
			}
			defer resp.Body.Close()
			res.status = resp.StatusCode
			res.err = json.NewDecoder(resp.Body).Decode(&res.resp)
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	addresses := map[common.Address]struct{}{}
	for res := range results {
		require.NoError(t, res.err)
		require.Equal(t, http.StatusOK, res.status)
		require.Nil(t, res.resp.Error)

		var account interfaces.Account
		require.NoError(t, json.Unmarshal(res.resp.Result, &account))
		addresses[account.Address] = struct{}{}
	}
	assert.Len(t, addresses, callers)
	assert.EqualValues(t, callers, backend.generated.Load())

	cancel()
	require.NoError(t, <-done)
}
