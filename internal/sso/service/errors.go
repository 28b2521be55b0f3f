package service

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/sso/internal/sso/store"
)

// Error kinds returned by every operation. Operations wrap them with detail,
// "bad_request: csrf not found", which ends up in the audit trail. Transports
// only ever show the kind.
var (
	ErrUnauthorised = errors.New("unauthorised")
	ErrBadRequest   = errors.New("bad_request")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
)

// errorKinds is checked in order by Kind.
var errorKinds = []error{ErrUnauthorised, ErrBadRequest, ErrForbidden, ErrNotFound, ErrConflict}

// Kind returns the error kind err wraps, or nil for internal errors.
func Kind(err error) error {
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

func unauthorised(detail string) error { return fmt.Errorf("%w: %s", ErrUnauthorised, detail) }
func badRequest(detail string) error   { return fmt.Errorf("%w: %s", ErrBadRequest, detail) }

// storeErr maps store sentinels onto error kinds. Anything else is an
// internal error and passes through.
func storeErr(err error, detail string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, detail)
	case errors.Is(err, store.ErrAlreadyExists):
		return fmt.Errorf("%w: %s", ErrConflict, detail)
	default:
		return fmt.Errorf("%s: %w", detail, err)
	}
}

// asBadRequest collapses a not found or conflict into bad_request, for the
// lookups whose existence must not leak.
func asBadRequest(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return err
}
