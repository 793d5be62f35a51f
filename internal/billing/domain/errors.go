package domain

import "errors"

var (
	ErrReceivableNotFound     = errors.New("receivable_not_found")
	ErrCustomerNotLinked      = errors.New("customer_not_linked")
	ErrProviderRecordNotFound = errors.New("provider_record_not_found")
	ErrInvalidEvent           = errors.New("invalid_event")
	ErrReceivableNotReceived  = errors.New("receivable_not_received")
)
