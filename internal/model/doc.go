// Package model defines the data types shared by the papertrade client.
//
// Types mirror the JSON bodies of the trading service's REST API and the
// payloads of its realtime channels.
//
// Conventions:
//   - Money and quantities: decimal.Decimal (server sends JSON numbers)
//   - Timestamps: strings as sent by the server (RFC 3339 / ISO 8601)
//   - User IDs: int64; order and trade IDs: opaque strings
package model
