// Package common contains shared constants and sentinel errors used across
// vaultkeeper components.
package common

// SessionHeaderName is the gRPC metadata key used to carry the session id on
// inbound requests.
const SessionHeaderName = "session_id"

// VaultKeySize is the byte length of a vault (data-encryption) key.
const VaultKeySize = 32

// ClientLabelHeaderName is the gRPC metadata key for a free-form client
// description stored with sessions, e.g. "cli on laptop".
const ClientLabelHeaderName = "client_label"

// ServiceName is the fully qualified gRPC service name of the server API.
const ServiceName = "vaultkeeper.v1.VaultKeeperService"
