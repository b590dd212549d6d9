package pallet

import (
	"errors"
	"fmt"

	"github.com/solaius/pallet-registry/pkg/db"
)

// Error categories. Concrete errors match one of these with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrValidation        = errors.New("validation error")
	ErrStore             = errors.New("store error")
)

// Transition error codes.
const (
	CodeInvalidTransition = "PALLET_INVALID_TRANSITION"
	CodeTransitionDenied  = "PALLET_TRANSITION_DENIED"
)

// NotFoundError reports a missing pallet, archive row or location.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// PalletNotFound returns a NotFoundError for a pallet number.
func PalletNotFound(number string) error {
	return &NotFoundError{Kind: "pallet", Key: number}
}

// TransitionError is a structured error for a status change the current
// state does not permit.
type TransitionError struct {
	Code    string `json:"code"`
	Pallet  string `json:"pallet"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Message string `json:"message"`
}

func (e *TransitionError) Error() string {
	return e.Message
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StoreError wraps a connection or transaction failure from the database.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

// storeErr wraps err as a StoreError unless it is nil or already categorised.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStore) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidTransition) {
		return err
	}
	return &StoreError{Op: op, Err: db.Classify(err)}
}

// AsStoreError is storeErr for callers outside the package.
func AsStoreError(op string, err error) error {
	return storeErr(op, err)
}
