package backend

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/docuform-tech/docuform/core"
	"github.com/docuform-tech/docuform/core/repository"
)

// Configuration holds a complete backend configuration
type Configuration struct {
	Entities []entityConfiguration `json:"entities"`
}

// entityConfiguration describes one registered resource
type entityConfiguration struct {
	Singular        string                         `json:"singular"`
	Plural          string                         `json:"plural"`
	Collection      string                         `json:"collection"`
	Description     string                         `json:"description"`
	OwnerField      string                         `json:"owner_field"`
	UpdatedByField  string                         `json:"updated_by_field"`
	AuditTimestamps bool                           `json:"audit_timestamps"`
	AdminOnly       []core.Mode                    `json:"admin_only"`
	UniqueIndex     []string                       `json:"unique_index"`
	CreateSchemaID  string                         `json:"create_schema_id"`
	UpdateSchemaID  string                         `json:"update_schema_id"`
	FilterSchemaID  string                         `json:"filter_schema_id"`
	Attachment      bool                           `json:"attachment"`
	Dependencies    []dependencyConfiguration      `json:"dependencies"`
	Relations       map[string]repository.Relation `json:"relations"`
}

// dependencyConfiguration is one entry of an entity's ownership graph.
// Entries keep their configured order. Repository names the collection of
// another entity in the same configuration, or "self" for the entity itself.
type dependencyConfiguration struct {
	Repository   string             `json:"repository"`
	Fields       map[string]sources `json:"fields"`
	SkipOnCreate bool               `json:"skip_on_create"`
}

// sources accepts a single source string or a list of source strings
type sources []string

// UnmarshalJSON implements json.Unmarshaler
func (s *sources) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = sources{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("source must be a string or a list of strings")
	}
	*s = many
	return nil
}

func (e *entityConfiguration) validateAndApplyDefaults() error {
	if e.Singular == "" {
		return fmt.Errorf("entity lacks a singular name")
	}
	if e.Plural == "" {
		e.Plural = core.Plural(e.Singular)
	}
	if e.Collection == "" {
		e.Collection = e.Singular
	}
	selfCount := 0
	for i, dep := range e.Dependencies {
		if len(dep.Fields) == 0 {
			return fmt.Errorf("entity %s: dependency #%d declares no fields", e.Singular, i)
		}
		if dep.Repository == dependsOnSelf {
			selfCount++
		}
	}
	if selfCount > 1 {
		return fmt.Errorf("entity %s: at most one dependency may reference %q", e.Singular, dependsOnSelf)
	}
	return nil
}
