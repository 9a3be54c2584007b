package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEntityType matches UnknownEntityTypeError via errors.Is.
	ErrUnknownEntityType = errors.New("unknown entity type")
	// ErrMalformedPayload matches PayloadError via errors.Is.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrNotFound is returned by data services for missing entities.
	ErrNotFound = errors.New("entity not found")
	// ErrNoDataService is returned when a persistence command is issued for an
	// entity type without a data service.
	ErrNoDataService = errors.New("no data service configured")
)

// UnknownEntityTypeError reports an entity type without registered metadata.
type UnknownEntityTypeError struct {
	EntityName string
}

func (e *UnknownEntityTypeError) Error() string {
	return fmt.Sprintf("no EntityDefinition for entity type %q", e.EntityName)
}

// Is lets errors.Is(err, ErrUnknownEntityType) match.
func (e *UnknownEntityTypeError) Is(target error) bool {
	return target == ErrUnknownEntityType
}

// PayloadError reports an operation payload the reducer cannot apply, such as
// an entity of the wrong Go type or one without an identifier.
type PayloadError struct {
	EntityName string
	Op         EntityOp
	Reason     string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.EntityName, e.Op, e.Reason)
}

// Is lets errors.Is(err, ErrMalformedPayload) match.
func (e *PayloadError) Is(target error) bool {
	return target == ErrMalformedPayload
}

// NotFoundError identifies a missing entity in a data service.
type NotFoundError struct {
	EntityName string
	ID         ID
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.EntityName, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
