// Package errors provides custom error types for cart and checkout operations.
package errors

import "errors"

var ErrCreateOrder = errors.New("failed to create order")
var ErrOpenOrderExists = errors.New("user already has an open order")

var ErrUpdateOrder = errors.New("failed to update order")
var ErrOptimisticLock = errors.New("optimistic lock error: the record has been modified by another transaction")

var ErrOrderNotFound = errors.New("order not found")
var ErrFailedToFindOrder = errors.New("failed to find order")
var ErrFailedToFindUserOrders = errors.New("failed to find user orders")

var ErrFailedToFindLineItems = errors.New("failed to find line items")
var ErrCreateLineItem = errors.New("failed to create line item")
var ErrDeleteLineItem = errors.New("failed to delete line item")
var ErrLineItemNotFound = errors.New("line item not found")

var ErrProductNotFound = errors.New("product not found")
var ErrProductInactive = errors.New("product is not active")
var ErrFailedToFindProduct = errors.New("failed to find product")
var ErrCountLineItems = errors.New("failed to count completed line items")
var ErrInsufficientStock = errors.New("insufficient stock")

var ErrFailedToFindPaymentType = errors.New("failed to find payment type")

var ErrTransactionBegin = errors.New("failed to begin transaction")
var ErrTransactionCommit = errors.New("failed to commit transaction")
var ErrTransactionRollback = errors.New("failed to rollback transaction")

var ErrAccessDenied = errors.New("access denied")

// Checkout outcomes surfaced to callers.
var (
	ErrCartNotFound         = errors.New("cart not found")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrAlreadyCompleted     = errors.New("order is already completed")
	ErrConcurrencyConflict  = errors.New("checkout conflicted with a concurrent update, retry later")
)
