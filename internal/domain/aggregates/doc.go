// Package aggregates declares the ledger and generation write contracts and
// the coded errors every layer above the database speaks.
package aggregates
