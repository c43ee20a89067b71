// Package api provides the REST client for the paper trading service.
//
// Every call is a single HTTP round trip; nothing is retried automatically.
// Failures of any kind (non-2xx status, unreachable host) surface as
// *APIError so callers handle one error shape:
//
//   - 401/403 also match ErrUnauthorized
//   - unreachable host also matches ErrTransportUnavailable
//
// The bearer token lives in the Client and is persisted through a
// storage.Store under TokenKey so it survives restarts.
package api
