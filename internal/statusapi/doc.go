// Package statusapi serves a local, read-only HTTP view of the client:
// realtime connection state, the signed-in user and the current feed
// snapshots.
//
//	GET /health
//	GET /snapshots/:feed   (prices, portfolio, trades, orders)
package statusapi
