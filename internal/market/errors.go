// internal/market/errors.go
package market

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/cenkalti/backoff/v5"
)

var (
	// ErrSourceUnavailable means the provider could not produce a value.
	ErrSourceUnavailable = errors.New("market data source unavailable")
	// ErrTimeout means the provider did not answer within its deadline.
	ErrTimeout = errors.New("market data source timeout")
)

// SourceError carries the provider and symbol of a failed fetch.
// It matches both its Kind and the underlying cause with errors.Is.
type SourceError struct {
	Provider string
	Symbol   string
	Kind     error
	Err      error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Symbol, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Provider, e.Symbol, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Unavailable wraps err as ErrSourceUnavailable.
func Unavailable(provider, symbol string, err error) error {
	return &SourceError{Provider: provider, Symbol: symbol, Kind: ErrSourceUnavailable, Err: err}
}

// Timeout wraps err as ErrTimeout.
func Timeout(provider, symbol string, err error) error {
	return &SourceError{Provider: provider, Symbol: symbol, Kind: ErrTimeout, Err: err}
}

// Classify maps an arbitrary provider error onto the two source error kinds.
// Permanent errors stay permanent.
func Classify(provider, symbol string, err error) error {
	if err == nil {
		return nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return backoff.Permanent(Classify(provider, symbol, perm.Err))
	}

	var se *SourceError
	if errors.As(err, &se) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(provider, symbol, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout(provider, symbol, err)
	}
	return Unavailable(provider, symbol, err)
}

// IsPermanent reports whether retrying err is pointless.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

func stripPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
