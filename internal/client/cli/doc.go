// Package cli provides the interactive VaultKeeper command-line client.
//
// It wires configuration, the gRPC API client and an interactive REPL.
// Typical flow: register once, log in (with an authenticator code when the
// second factor is on), manage sessions and credentials, log out.
//
// Key features:
//   - Register / Login / Logout, with the second-factor step
//   - Password change and recovery-key reset
//   - Session listing and logout everywhere
//   - Second factor: enable, disable, backup codes
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// A background watcher pings the server and switches between online and
// offline mode. See App, StartOnlineStatusWatcher, and runREPL for details.
package cli
