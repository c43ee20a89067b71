// Package journal records observed price snapshots to PostgreSQL.
//
// Rows are buffered in memory and written with COPY when the batch fills or
// the flush interval elapses. The journal is append-only.
package journal
