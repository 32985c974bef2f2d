// Package aggregates implements the ledger and generation write boundaries.
//
// Each write runs in one transaction that spans orders, balances, credit
// transactions or generation jobs, so a crash never leaves credits granted
// without the matching order transition.
package aggregates
