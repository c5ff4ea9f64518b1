package billing

import (
	"errors"

	"github.com/dmitrymomot/bookrent/pkg/subscription"
)

var (
	ErrAuthentication = errors.New("billing: callback signature is invalid")
	ErrValidation     = errors.New("billing: invalid input")
	ErrStore          = errors.New("billing: persistence failure")
	ErrLockTimeout    = errors.New("billing: reference is busy")

	// ErrInvalidTransition is returned by Cancel for requests that are no
	// longer pending.
	ErrInvalidTransition = subscription.ErrInvalidTransition
	ErrRequestNotFound   = subscription.ErrRequestNotFound
)

// errLostRace rolls back a transaction whose compare-and-set found the
// request already terminal.
var errLostRace = errors.New("billing: request already processed")

func storeErr(err error) error {
	if err == nil || errors.Is(err, ErrStore) {
		return err
	}
	return errors.Join(ErrStore, err)
}
