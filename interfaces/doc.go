// Package interfaces defines the types shared between the account generator
// components without tying them to an implementation.
//
// # Generation
//
// KeyGenerator is what request handlers call. GeneratorBackend is a concrete
// key source wrapped by generator.Factory, which owns its lifecycle and
// serializes access to it. AccountObserver receives every generated account
// (the ledger is the main observer).
//
// # Errors
//
// ErrInvalidConfig, InitializationError and StartupError map to the process
// exit codes chosen by the command line parser. GenerationError is reported
// to RPC clients as an internal error.
package interfaces
