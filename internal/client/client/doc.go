// Package client talks to the vaultkeeper server over gRPC.
//
// # Overview
//
// Client is the transport-agnostic contract used by the CLI; GRPCClient
// implements it. After a successful login GRPCClient remembers the session
// id and attaches it to every later call as session_id metadata.
//
// # Error Handling
//
// Status codes are mapped to sentinel errors that callers match with
// errors.Is: ErrUnavailable, ErrUnauthorized, ErrLocked, ErrRejected. The
// server's message is kept in the error text.
package client
