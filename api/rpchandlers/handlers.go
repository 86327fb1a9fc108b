// Package rpchandlers contains the JSON-RPC methods of the account generator.
package rpchandlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/ruteri/account-generator/interfaces"
	"github.com/ruteri/account-generator/jsonrpc"
)

const (
	MethodGenerateAccount = "generateAccount"
	MethodListAccounts    = "listAccounts"

	maxListLimit = 1000
)

// GeneratorProvider hands out the live key generator, e.g. *generator.Factory.
type GeneratorProvider interface {
	Generator() interfaces.KeyGenerator
}

// AccountLister reads previously generated accounts, e.g. *ledger.Ledger.
type AccountLister interface {
	List(ctx context.Context, limit int) ([]*interfaces.Account, error)
}

// GenerateAccountHandler answers generateAccount with a freshly generated
// account. Params, if any, are ignored.
type GenerateAccountHandler struct {
	provider GeneratorProvider
	log      *slog.Logger
}

func NewGenerateAccountHandler(provider GeneratorProvider, log *slog.Logger) *GenerateAccountHandler {
	return &GenerateAccountHandler{provider: provider, log: log}
}

func (h *GenerateAccountHandler) Handle(_ context.Context, sink *jsonrpc.ResponseSink, req *jsonrpc.Request) {
	account, err := h.provider.Generator().Generate()
	if err != nil {
		if errors.Is(err, interfaces.ErrGeneratorNotInitialized) {
			h.log.Error("Generate called on uninitialized generator", "err", err)
			sink.WriteError(jsonrpc.NewError(jsonrpc.InternalError, "key generator is not initialized"))
			return
		}
		h.log.Error("Failed to generate account", "err", err)
		sink.WriteError(jsonrpc.NewError(jsonrpc.InternalError, nil))
		return
	}

	sink.WriteResult(account)
}

type listAccountsParams struct {
	Limit int `json:"limit"`
}

// ListAccountsHandler answers listAccounts with ledger records, newest
// first. Accepts {"limit": n}.
type ListAccountsHandler struct {
	lister AccountLister
	log    *slog.Logger
}

func NewListAccountsHandler(lister AccountLister, log *slog.Logger) *ListAccountsHandler {
	return &ListAccountsHandler{lister: lister, log: log}
}

func (h *ListAccountsHandler) Handle(ctx context.Context, sink *jsonrpc.ResponseSink, req *jsonrpc.Request) {
	var params listAccountsParams
	if len(req.Params) > 0 && !bytes.Equal(bytes.TrimSpace(req.Params), []byte("[]")) {
		dec := json.NewDecoder(bytes.NewReader(req.Params))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&params); err != nil {
			sink.WriteError(jsonrpc.NewError(jsonrpc.InvalidParams, "expected {\"limit\": <number>}"))
			return
		}
	}
	if params.Limit < 0 || params.Limit > maxListLimit {
		sink.WriteError(jsonrpc.NewError(jsonrpc.InvalidParams, "limit must be between 0 and 1000"))
		return
	}

	accounts, err := h.lister.List(ctx, params.Limit)
	if err != nil {
		h.log.Error("Failed to list accounts", "err", err)
		sink.WriteError(jsonrpc.NewError(jsonrpc.InternalError, nil))
		return
	}
	sink.WriteResult(accounts)
}

// Register adds the handlers to mapper. listAccounts is only registered when
// a lister is available.
func Register(mapper *jsonrpc.RequestMapper, provider GeneratorProvider, lister AccountLister, log *slog.Logger) {
	mapper.Register(MethodGenerateAccount, NewGenerateAccountHandler(provider, log))
	if lister != nil {
		mapper.Register(MethodListAccounts, NewListAccountsHandler(lister, log))
	}
}
