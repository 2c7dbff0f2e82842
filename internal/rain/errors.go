package rain

import (
	"errors"
	"fmt"

	"github.com/thatsimonsguy/rain-sensor/internal/model"
)

// ErrModuleNotFound means no station in the device list carries a rain gauge.
var ErrModuleNotFound = errors.New("no rain gauge module found")

// AuthError wraps a failed authenticate or reauthenticate call.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "authentication failed: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// FetchError wraps a failed measurement fetch. The detection state is left as
// it was.
type FetchError struct {
	Identity model.Identity
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch measures for %s/%s: %v", e.Identity.StationID, e.Identity.ModuleID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
