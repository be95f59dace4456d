package services

import (
	"errors"

	"Marketplace/internal/ledger"
)

// Error taxonomy shared by the settlement pipeline and the HTTP layer.
var (
	ErrValidation    = errors.New("validation error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrConfiguration = errors.New("configuration error")
	ErrUpstream      = errors.New("upstream failure")
	ErrConflict      = errors.New("conflict")

	// ErrUncommissioned marks a transaction that completed but has no
	// commission rows. It is never retried automatically.
	ErrUncommissioned = errors.New("transaction completed without commissions")

	ErrNotFound            = ledger.ErrNotFound
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
)
