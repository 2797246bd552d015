/*Package core defines the common vocabulary shared by the generic resource
framework: the request modes of the generated handlers and naming helpers
for REST routes.
*/
package core

import (
	"strings"

	"github.com/goccy/go-json"

	"fmt"
)

// Mode identifies one of the generated operations of a resource.
type Mode string

// all generated operations
const (
	ModeCreate  Mode = "create"
	ModeUpdate  Mode = "update"
	ModeDelete  Mode = "delete"
	ModeList    Mode = "get_multi_filters"
	ModeListOwn Mode = "get_multi_filters_own"
	ModeExists  Mode = "get_exists_filters"
	ModeGetOne  Mode = "get_one"
)

// IsRead returns true for the query-style modes, i.e. the modes whose
// name starts with "get_".
func (m Mode) IsRead() bool {
	return strings.HasPrefix(string(m), "get_")
}

// IsSingle returns true for the modes that short-circuit to a single result.
func (m Mode) IsSingle() bool {
	return m == ModeGetOne || m == ModeExists
}

// UnmarshalJSON is a custom JSON unmarshaller which rejects unknown modes
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*m = Mode(s)
	switch *m {
	case ModeCreate, ModeUpdate, ModeDelete, ModeList, ModeListOwn, ModeExists, ModeGetOne:
		return nil
	default:
		return fmt.Errorf("%s is not a valid mode", s)
	}
}

// Plural returns the plural form of the passed singular string.
//
// This is the algorithm used to create idiomatic REST routes when a
// resource configuration does not spell out its plural name.
func Plural(singular string) string {
	if strings.HasSuffix(singular, "y") {
		return strings.TrimSuffix(singular, "y") + "ies"
	}
	if strings.HasSuffix(singular, "s") {
		return singular + "es"
	}
	return singular + "s"
}
