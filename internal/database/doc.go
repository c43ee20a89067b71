// Package database provides connection pool management for PostgreSQL.
//
// The pool backs the optional price journal; the client itself keeps no
// relational state.
package database
