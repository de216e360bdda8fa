package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrInvalidPaymentMethod   = errors.New("invalid payment method")
	ErrMissingDeliveryAddress = errors.New("missing delivery address")
	ErrOwnershipMismatch      = errors.New("item does not belong to order")
	ErrInvalidTransition      = errors.New("invalid status transition")
)
