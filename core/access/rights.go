package access

import (
	"fmt"
	"net/http"

	"github.com/docuform-tech/docuform/core"
)

// Rights is a bitmask of the coarse capabilities checked on admin-mode
// requests. Each capability toggles independently.
type Rights int

// the independent capabilities
const (
	CanRead Rights = 1 << iota
	CanUpdate
	CanDelete
	CanCreate
)

// Covers returns true if the bitmask contains every bit of required.
func (r Rights) Covers(required Rights) bool {
	return r&required == required
}

// RequiredRights maps an HTTP method and a request mode to the minimal
// rights needed for the admin-mode variant of the operation.
//
// An unmapped combination is a registration bug, not a denial, and is
// reported as an error that callers must not swallow.
func RequiredRights(method string, mode core.Mode) (Rights, error) {
	switch {
	case method == http.MethodPost && mode.IsRead():
		return CanRead, nil
	case method == http.MethodPost && mode == core.ModeCreate:
		return CanCreate, nil
	case method == http.MethodPut && mode == core.ModeUpdate:
		return CanUpdate, nil
	case method == http.MethodDelete:
		return CanDelete, nil
	}
	return 0, fmt.Errorf("no rights mapping for %s with mode %s", method, mode)
}
