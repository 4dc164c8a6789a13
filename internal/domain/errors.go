package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrExhausted     = errors.New("address pool exhausted")
	ErrAlreadyActive = errors.New("address already active")
	ErrNotActive     = errors.New("address not active")
	ErrInvalidTarget = errors.New("invalid discovery target")
	ErrUnauthorized  = errors.New("unauthorized")
)

// Refinements of the kinds above. errors.Is matches both the refinement and its kind.
var (
	ErrSubnetOverlap   = fmt.Errorf("%w: subnet overlaps an existing subnet", ErrInvalidInput)
	ErrNotInSubnet     = fmt.Errorf("%w: address not in subnet host range", ErrInvalidInput)
	ErrReservedAddress = fmt.Errorf("%w: address is reserved", ErrInvalidInput)
	ErrSubnetNotFound  = fmt.Errorf("subnet %w", ErrNotFound)
	ErrNoSnapshot      = fmt.Errorf("discovery snapshot %w", ErrNotFound)
)
