package store

import "errors"

var (
	// ErrDuplicateEntitlement reports that an entitlement row already exists
	// for the (userID, bookID) pair. The uniqueness constraint doubles as the
	// serialization point for concurrent grants: a losing insert fails with
	// this error and the caller re-reads to reconcile.
	ErrDuplicateEntitlement = errors.New("entitlement already exists for user and book")

	// ErrDuplicatePayment reports a second ledger row for the same pidx.
	ErrDuplicatePayment = errors.New("payment attempt already exists for pidx")

	// ErrNotFound reports that the addressed row does not exist.
	ErrNotFound = errors.New("record not found")
)
