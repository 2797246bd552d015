/*Package backend turns a declarative resource configuration into a live set
of REST handlers on a router.

For every configured entity it registers create, update, delete, filtered
listing, owner-scoped listing and an existence check, each twice: once under
the plain resource path and once under an /admin prefix that requires the
caller's rights bitmask to cover the action.
*/
package backend

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/docuform-tech/docuform/core"
	"github.com/docuform-tech/docuform/core/access"
	"github.com/docuform-tech/docuform/core/attachment"
	"github.com/docuform-tech/docuform/core/docdb"
	"github.com/docuform-tech/docuform/core/logger"
	"github.com/docuform-tech/docuform/core/repository"
	"github.com/docuform-tech/docuform/core/schema"
)

// dependsOnSelf is the configuration shorthand for the entity's own
// repository in a dependency graph.
const dependsOnSelf = "self"

// Backend is the generic rest backend
type Backend struct {
	config       Configuration
	store        docdb.Store
	router       *mux.Router
	processor    attachment.Processor
	validator    *schema.Validator
	repositories map[string]*repository.Repository
	entities     map[string]*entity
}

// Builder is a builder helper for the Backend
type Builder struct {
	// Config is the JSON description of all entities. This is mandatory.
	Config string
	// Store is the document store. This is mandatory.
	Store docdb.Store
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Processor handles file uploads for entities configured with an
	// attachment. Mandatory only when such an entity exists.
	Processor attachment.Processor
	// JSONSchemas are top-level JSON schemas for payload and filter
	// validation, addressed by their $id.
	JSONSchemas []string
	// JSONSchemasRefs are schemas referenced by the top-level schemas.
	JSONSchemasRefs []string
}

// New realizes the actual backend. It creates repositories and unique
// indexes for all configured entities and adds their routes to the router.
// Configuration errors panic, they are registration bugs.
func New(bb *Builder) *Backend {
	var config Configuration
	if err := json.Unmarshal([]byte(bb.Config), &config); err != nil {
		panic(fmt.Errorf("parse error in backend configuration: %s", err))
	}
	if bb.Store == nil {
		panic("Store is missing")
	}
	if bb.Router == nil {
		panic("Router is missing")
	}

	validator, err := schema.NewValidator(bb.JSONSchemas, bb.JSONSchemasRefs)
	if err != nil {
		panic(fmt.Errorf("invalid JSON schemas: %s", err))
	}

	b := &Backend{
		config:       config,
		store:        bb.Store,
		router:       bb.Router,
		processor:    bb.Processor,
		validator:    validator,
		repositories: make(map[string]*repository.Repository),
		entities:     make(map[string]*entity),
	}

	nillog := logger.Default()

	// repositories first, dependency graphs may reference any entity
	for i := range config.Entities {
		ec := &config.Entities[i]
		if err := ec.validateAndApplyDefaults(); err != nil {
			panic(err)
		}
		if _, ok := b.repositories[ec.Collection]; ok {
			panic(fmt.Errorf("duplicate collection %s in backend configuration", ec.Collection))
		}
		b.repositories[ec.Collection] = repository.New(bb.Store, repository.Config{
			Collection:      ec.Collection,
			OwnerField:      ec.OwnerField,
			UpdatedByField:  ec.UpdatedByField,
			AuditTimestamps: ec.AuditTimestamps,
			Relations:       ec.Relations,
		})
	}

	for i := range config.Entities {
		ec := config.Entities[i]
		nillog.Debugln("create entity:", ec.Singular)
		if ec.Description != "" {
			nillog.Debugln("  description:", ec.Description)
		}
		for _, schemaID := range []string{ec.CreateSchemaID, ec.UpdateSchemaID, ec.FilterSchemaID} {
			if schemaID != "" && !validator.HasSchema(schemaID) {
				nillog.Errorf("invalid configuration for entity %s, schema %s is unknown. Validation is deactivated",
					ec.Singular, schemaID)
			}
		}
		if ec.Attachment && bb.Processor == nil {
			panic(fmt.Errorf("entity %s requests an attachment, but the builder has no processor", ec.Singular))
		}

		e := &entity{
			backend:      b,
			config:       ec,
			repository:   b.repositories[ec.Collection],
			dependencies: b.resolveDependencies(ec),
			adminOnly:    make(map[core.Mode]bool),
		}
		for _, mode := range ec.AdminOnly {
			e.adminOnly[mode] = true
		}
		b.entities[ec.Collection] = e

		if len(ec.UniqueIndex) > 0 {
			if err := bb.Store.CreateIndex(context.Background(), ec.Collection, ec.UniqueIndex, true); err != nil {
				panic(fmt.Errorf("cannot create unique index for %s: %s", ec.Collection, err))
			}
		}
		e.addRoutes(bb.Router)
	}
	return b
}

// resolveDependencies turns the configured dependency graph into the fixed
// ordered list the ownership evaluator works on. The "self" shorthand
// resolves to the entity's own repository.
func (b *Backend) resolveDependencies(ec entityConfiguration) []access.Dependency {
	var deps []access.Dependency
	for _, dc := range ec.Dependencies {
		collection := dc.Repository
		if collection == dependsOnSelf {
			collection = ec.Collection
		}
		repo, ok := b.repositories[collection]
		if !ok {
			panic(fmt.Errorf("entity %s depends on unknown collection %s", ec.Singular, dc.Repository))
		}
		fields := make([]string, 0, len(dc.Fields))
		for field := range dc.Fields {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		rules := make([]access.Rule, 0, len(fields))
		for _, field := range fields {
			rules = append(rules, access.Rule{Field: field, Sources: dc.Fields[field]})
		}
		deps = append(deps, access.Dependency{
			Repository:   repo,
			Rules:        rules,
			SkipOnCreate: dc.SkipOnCreate,
		})
	}
	return deps
}

// Repository returns the repository registered for collection, or nil.
func (b *Backend) Repository(collection string) *repository.Repository {
	return b.repositories[collection]
}

func (e *entity) addRoutes(router *mux.Router) {
	singular, plural := e.config.Singular, e.config.Plural
	for _, prefix := range []string{"", "/admin"} {
		admin := prefix != ""
		router.HandleFunc(prefix+"/"+singular, e.handlerFor(core.ModeCreate, admin)).Methods(http.MethodPost)
		router.HandleFunc(prefix+"/"+singular, e.handlerFor(core.ModeUpdate, admin)).Methods(http.MethodPut)
		router.HandleFunc(prefix+"/"+singular, e.handlerFor(core.ModeDelete, admin)).Methods(http.MethodDelete)
		router.HandleFunc(prefix+"/"+plural+"/filters", e.handlerFor(core.ModeList, admin)).Methods(http.MethodPost)
		router.HandleFunc(prefix+"/"+plural+"/filters/own", e.handlerFor(core.ModeListOwn, admin)).Methods(http.MethodPost)
		router.HandleFunc(prefix+"/"+plural+"/exists", e.handlerFor(core.ModeExists, admin)).Methods(http.MethodPost)
	}
}
