// Package main (cmd/accountgenerator) runs the account generator service.
//
// The service generates Ethereum accounts on request. A generator sub-command
// selects where keys are created:
//
//   - file-based: keys are generated in software and written as encrypted V3
//     keystore files, each next to a .password file.
//
//   - hsm-based: keys are generated inside a PKCS#11 token and never leave it.
//     Key objects are labelled with their address.
//
// The generator is initialized before the HTTP listener binds, so a broken
// backend (missing library, wrong PIN, absent slot) stops the process with
// exit code 1 instead of serving errors.
//
// Secrets (keystore password, HSM PIN) can be given as literals or as
// references: env:NAME, file:/path or vault:mount/path#field.
//
// Endpoints:
//
//   - POST /        JSON-RPC 2.0: generateAccount, and listAccounts when
//     --ledger-db is set
//   - GET /upcheck  always "I'm up!"
//   - GET /livez, /readyz, /drain, /undrain
//   - /debug/pprof  with --pprof
//
// Example usage:
//
//	accountgenerator --http-listen-port 9000 file-based --output-directory ./keys
//
//	accountgenerator --ledger-db accounts.db hsm-based \
//	    --library /usr/lib/softhsm/libsofthsm2.so --slot label:signing --pin env:HSM_PIN
//
//	curl -s -d '{"jsonrpc":"2.0","method":"generateAccount","params":{},"id":1}' localhost:9000
package main
