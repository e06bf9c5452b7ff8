package gomanager

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks errors in resource definitions. They surface
	// while a manager is being built and are never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrItemNotFound is the not-found outcome of lookups.
	ErrItemNotFound = errors.New("item not found")
	// ErrNotSupported is returned by operations a backend does not provide.
	ErrNotSupported = errors.New("operation not supported")
)

// ConfigurationError describes an invalid resource definition.
type ConfigurationError struct {
	Reason string
}

func newConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfiguration, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ItemNotFoundError carries the lookup that produced no item.
type ItemNotFoundError struct {
	Resource *Resource
	// Where is set when the lookup was a query.
	Where Where
	// ID is set when the lookup was by identifier.
	ID any
}

func (e *ItemNotFoundError) Error() string {
	name := e.Resource.Name()

	if e.ID != nil {
		return fmt.Sprintf("%s: %s with id '%v'", ErrItemNotFound, name, e.ID)
	} else if len(e.Where) > 0 {
		return fmt.Sprintf("%s: %s where %s", ErrItemNotFound, name, e.Where)
	}

	return fmt.Sprintf("%s: %s", ErrItemNotFound, name)
}

func (e *ItemNotFoundError) Is(target error) bool {
	return target == ErrItemNotFound
}

// NotSupportedError names the operation a backend does not implement.
type NotSupportedError struct {
	Operation string
	Resource  *Resource
}

func newNotSupportedError(op string, resource *Resource) *NotSupportedError {
	return &NotSupportedError{Operation: op, Resource: resource}
}

func (e *NotSupportedError) Error() string {
	if e.Resource == nil {
		return fmt.Sprintf("%s: %s", ErrNotSupported, e.Operation)
	}

	return fmt.Sprintf("%s: %s on %s", ErrNotSupported, e.Operation, e.Resource.Name())
}

func (e *NotSupportedError) Is(target error) bool {
	return target == ErrNotSupported
}
