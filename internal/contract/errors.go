package contract

import (
	"errors"
	"fmt"
)

// Sentinel errors for the contract package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrMultipleBlocks is returned when a description contains more than one
	// contract block. Exactly one block is recognized per description.
	ErrMultipleBlocks = errors.New("multiple drift-contract blocks found")

	// ErrSchemaUnsupported is returned when a contract declares a schema
	// version this build does not support.
	ErrSchemaUnsupported = errors.New("unsupported contract schema")

	// ErrNotMapping is returned when the block body does not parse to a
	// YAML mapping.
	ErrNotMapping = errors.New("contract body must be a YAML mapping")
)

// ParseError wraps any failure to turn a contract block into a Contract.
// It carries the underlying cause so callers can match sentinels with errors.Is.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse contract: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
