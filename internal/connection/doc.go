// Package connection implements the Realtime Channel Manager.
//
// The Manager:
//   - Maintains one WebSocket connection per bearer token
//   - Multiplexes named channels over it, one callback per channel
//   - Reconnects with linear backoff (attempt × base delay), then gives up
//   - Re-sends a subscribe frame for every registered channel after each connect
//
// Frames from the server are {"channel": ..., "payload": ...}; control frames
// sent to the server are {"action": "subscribe"|"unsubscribe", "channel": ...}.
package connection
