// Package domain contains the core domain types for the blockchain context.
package domain

// TxStatus is the observed status of a broadcast transaction.
type TxStatus string

const (
	// TxPending means the transaction is known to the network but not yet mined.
	TxPending TxStatus = "pending"
	// TxConfirmed means the transaction was mined and executed successfully.
	TxConfirmed TxStatus = "confirmed"
	// TxFailed means the transaction was mined but reverted.
	TxFailed TxStatus = "failed"
	// TxNotFound means the network no longer knows the transaction.
	TxNotFound TxStatus = "not_found"
)
