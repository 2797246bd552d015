/*Package repository implements the generic record repository: get, create,
update and delete against one named collection of the document store, with
audit-field stamping and owner-scoped queries.

What a repository stamps is declared up front per entity - the owner field,
the updated-by field and the audit timestamps are explicit capabilities of
the configuration, never guessed from the payload shape.
*/
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/docuform-tech/docuform/core"
	"github.com/docuform-tech/docuform/core/access"
	"github.com/docuform-tech/docuform/core/docdb"
)

// ErrNotApplied is returned by Update when not exactly one record was
// modified, and by Delete when not exactly one record was removed.
var ErrNotApplied = errors.New("repository: operation not applied")

// maxLimit is the hard cap on the number of records a single query returns.
const maxLimit = 100

// Relation describes a join with a foreign collection, addressed by alias
// in query requests.
type Relation struct {
	From         string `json:"from"`
	LocalField   string `json:"local_field"`
	ForeignField string `json:"foreign_field"`
}

// Config declares a repository over one collection.
type Config struct {
	// Collection is the collection name. Mandatory.
	Collection string
	// OwnerField names the audit field stamped with the creator's identity,
	// empty when the entity has no owner.
	OwnerField string
	// UpdatedByField names the audit field stamped on updates, empty when
	// the entity does not track it.
	UpdatedByField string
	// AuditTimestamps enables the created_on/updated_on stamps.
	AuditTimestamps bool
	// Relations maps aliases to join descriptors.
	Relations map[string]Relation
}

// Repository is a generic record repository over one collection.
type Repository struct {
	store  docdb.Store
	config Config
}

// New creates a repository. It panics when the collection name is missing,
// as that is a registration bug.
func New(store docdb.Store, config Config) *Repository {
	if config.Collection == "" {
		panic("repository collection is missing")
	}
	return &Repository{store: store, config: config}
}

// Collection returns the collection name the repository works on.
func (r *Repository) Collection() string {
	return r.config.Collection
}

// Query describes a read request.
type Query struct {
	Filter    docdb.Document
	Relations []string
	Group     docdb.Document
	Sort      []docdb.SortField
	Skip      int64
	Limit     int64
	Mode      core.Mode
}

// Get runs a read query and returns the matching records. The limit
// defaults to 100 and is capped at 100. Single-result modes return at most
// one record. Owner-scoped listing rewrites the filter to the actor's own
// records and yields nothing for the anonymous actor.
func (r *Repository) Get(ctx context.Context, actor access.Actor, q Query) ([]docdb.Document, error) {
	limit := q.Limit
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	filter := docdb.Document{}
	for key, value := range q.Filter {
		filter[key] = value
	}

	if q.Mode == core.ModeListOwn {
		if r.config.OwnerField == "" {
			return nil, nil
		}
		identity, ok := actor.Identity()
		if !ok {
			return nil, nil
		}
		filter[r.config.OwnerField] = identity
	}

	var lookups []docdb.Lookup
	requested := map[string]bool{}
	for _, alias := range q.Relations {
		relation, ok := r.config.Relations[alias]
		if !ok || requested[alias] {
			continue
		}
		requested[alias] = true
		lookups = append(lookups, docdb.Lookup{
			From:         relation.From,
			LocalField:   relation.LocalField,
			ForeignField: relation.ForeignField,
			As:           alias,
		})
	}

	plan := docdb.BuildQuery(filter, lookups, q.Group, q.Sort, q.Skip, limit, q.Mode.IsSingle())

	if plan.Pipeline != nil {
		return r.store.Aggregate(ctx, r.config.Collection, plan.Pipeline)
	}
	if plan.Single {
		doc, err := r.store.FindOne(ctx, r.config.Collection, plan.Filter)
		if err == docdb.ErrNoDocuments {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []docdb.Document{doc}, nil
	}
	return r.store.Find(ctx, r.config.Collection, plan.Filter, plan.Options)
}

// Probe reports whether the collection contains a record matching query.
// This is the existence check the ownership evaluator runs.
func (r *Repository) Probe(ctx context.Context, query map[string]interface{}) (bool, error) {
	_, err := r.store.FindOne(ctx, r.config.Collection, query)
	if err == docdb.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create stamps the audit fields on payload, persists it and returns the
// stored record including its identifier. A record without an "_id" gets a
// generated one. The owner field is stamped with the actor's identity,
// never for the anonymous actor.
func (r *Repository) Create(ctx context.Context, actor access.Actor, payload docdb.Document) (docdb.Document, error) {
	doc := docdb.Document{}
	for key, value := range payload {
		doc[key] = value
	}
	if id, ok := doc["_id"].(string); !ok || id == "" {
		doc["_id"] = uuid.New().String()
	}
	if identity, ok := actor.Identity(); ok && r.config.OwnerField != "" {
		doc[r.config.OwnerField] = identity
	}
	if r.config.AuditTimestamps {
		doc["created_on"] = now()
	}

	id, err := r.store.InsertOne(ctx, r.config.Collection, doc)
	if err != nil {
		return nil, err
	}
	return r.store.FindOne(ctx, r.config.Collection, docdb.Document{"_id": id})
}

// Update applies the fields present in payload to the record matching the
// payload's identifier and returns the refreshed record. It returns
// ErrNotApplied unless exactly one record was modified.
func (r *Repository) Update(ctx context.Context, actor access.Actor, payload docdb.Document) (docdb.Document, error) {
	set := docdb.Document{}
	for key, value := range payload {
		if key == "_id" {
			continue
		}
		set[key] = value
	}
	if identity, ok := actor.Identity(); ok && r.config.UpdatedByField != "" {
		set[r.config.UpdatedByField] = identity
	}
	if r.config.AuditTimestamps {
		set["updated_on"] = now()
	}
	if len(set) == 0 {
		return nil, ErrNotApplied
	}

	match := docdb.Document{"_id": payload["_id"]}
	_, modified, err := r.store.UpdateOne(ctx, r.config.Collection, match, set)
	if err != nil {
		return nil, err
	}
	if modified != 1 {
		return nil, ErrNotApplied
	}
	return r.store.FindOne(ctx, r.config.Collection, match)
}

// Delete removes the record matching the payload's identifier. It returns
// ErrNotApplied unless exactly one record was removed.
func (r *Repository) Delete(ctx context.Context, payload docdb.Document) error {
	deleted, err := r.store.DeleteOne(ctx, r.config.Collection, docdb.Document{"_id": payload["_id"]})
	if err != nil {
		return err
	}
	if deleted != 1 {
		return ErrNotApplied
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
