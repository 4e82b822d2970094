package domain

import "errors"

// Validation failures. They block the operation and leave every piece of
// state as it was.
var (
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInsufficientPayment  = errors.New("insufficient payment")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrStockChanged         = errors.New("stock changed since the item was added")
	ErrMissingReason        = errors.New("return reason is required")
	ErrRefundExceedsCeiling = errors.New("refund exceeds allowed amount")
	ErrInvalidQuantity      = errors.New("quantity must be at least 1")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
	ErrInvalidRefund        = errors.New("refund amount must not be negative")
	ErrNoSelection          = errors.New("no product selected for return")
	ErrInvalidProduct       = errors.New("invalid product")
)

// Persistence and session failures.
var (
	ErrLoadFailed = errors.New("failed to load products")
	ErrAddFailed  = errors.New("failed to add product")
	ErrSyncFailed = errors.New("failed to update products")
	ErrAuthFailed = errors.New("authentication failed")
)
