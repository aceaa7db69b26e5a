package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput means the stdin envelope is not the expected shape.
	ErrMalformedInput = errors.New("malformed rules input")

	// ErrInvalidSignature means a payload failed signature verification.
	ErrInvalidSignature = errors.New("invalid rules signature")

	// ErrInvalidRules is the generic class of unusable file-sourced rules.
	// ErrMissingVersion and ErrMissingPayload both match it.
	ErrInvalidRules = errors.New("invalid collection rules")

	// ErrMissingVersion means cached rules were found but carry no version.
	ErrMissingVersion = fmt.Errorf("%w: no version in rules", ErrInvalidRules)

	// ErrMissingPayload means no usable rules were found at all.
	ErrMissingPayload = fmt.Errorf("%w: no rules available", ErrInvalidRules)
)

// SourceError ties a classified failure to the source and candidate that
// produced it.
type SourceError struct {
	Source string
	Origin string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Origin == "" {
		return fmt.Sprintf("rules: %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("rules: %s %s: %v", e.Source, e.Origin, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
