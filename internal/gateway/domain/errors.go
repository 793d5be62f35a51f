package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrGatewayDisabled is returned for any call on a tenant without an API key.
	ErrGatewayDisabled = errors.New("gateway_disabled")
	ErrInvalidRequest  = errors.New("gateway_invalid_request")
)

// RequestError carries the last HTTP status and raw body after retries are
// exhausted.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("gateway request failed: status=%d body=%s", e.StatusCode, e.Body)
}
