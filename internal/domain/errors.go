package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfig          = errors.New("configuration error")
	ErrCredentialFile  = errors.New("credential file error")
	ErrListingFetch    = errors.New("listing fetch error")
	ErrListingCorrupt  = errors.New("listing cache corrupt")
	ErrAdvancedCorrupt = errors.New("advanced cache corrupt")
	ErrDetailFetch     = errors.New("detail fetch error")
)

// Wrap tags err with marker so callers can classify it with errors.Is.
func Wrap(marker error, message string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, message, err)
	}
	return fmt.Errorf("%w: %s", marker, message)
}

// IsFatal reports whether err must abort the whole run. Only detail fetch
// failures are recovered, at the category level.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrDetailFetch)
}
