// Package store defines the archive ledger contract and its row types.
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store
