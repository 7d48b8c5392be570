package mercadona

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned when an operation needs a session identity
// (customer id + token) that the profile does not hold. It is a configuration
// error, not a transport one: callers should interrupt and ask for login.
var ErrNotAuthenticated = errors.New("not authenticated: no session credential configured")

// StatusError reports a non-success HTTP status from the remote API.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
}
