// Package cli implements vaultctl, the operator tool for a vault.
//
// Folder commands (lock, unlock, verify, usage) work directly on the vault
// tree named by VAULT_ROOT or -r and must run on the vault host. Sweep
// commands call the server's maintenance service over gRPC, authenticated
// with the API key.
//
//	vaultctl [-r root] [-a addr] [-k api-key] <command> [args]
package cli
