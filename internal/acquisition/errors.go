package acquisition

import (
	"errors"
	"fmt"
)

// ErrProviderNotFound indicates no registered provider owns a URL or key
var ErrProviderNotFound = errors.New("no provider for work")

// ProviderFetchError wraps a provider failure with the operation and URL that
// triggered it
type ProviderFetchError struct {
	Op  string
	URL string
	Err error
}

func (e *ProviderFetchError) Error() string {
	return fmt.Sprintf("provider %s failed for %s: %v", e.Op, e.URL, e.Err)
}

func (e *ProviderFetchError) Unwrap() error {
	return e.Err
}
