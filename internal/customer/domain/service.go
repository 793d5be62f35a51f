package domain

import (
	"context"
	"errors"
)

type ListCustomerRequest struct {
	PageToken string
	PageSize  int32
}

type ListCustomerResponse struct {
	Customers     []Customer `json:"customers"`
	NextPageToken string     `json:"next_page_token"`
	HasMore       bool       `json:"has_more"`
}

type GetCustomerRequest struct {
	ID string
}

// Service exposes tenant-scoped customer reads. Both reads synchronize plan
// status for the returned ids before responding, so status is always fresh.
type Service interface {
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)
	GetByID(context.Context, GetCustomerRequest) (Customer, error)
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidID     = errors.New("invalid_id")
	ErrNotFound      = errors.New("not_found")
)
