package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuform-tech/docuform/core"
	"github.com/docuform-tech/docuform/core/access"
	"github.com/docuform-tech/docuform/core/docdb"
)

func newTestRepository(t *testing.T) (*Repository, docdb.Store) {
	t.Helper()
	store := docdb.NewMemory()
	repo := New(store, Config{
		Collection:      "document",
		OwnerField:      "created_by_id",
		UpdatedByField:  "updated_by_id",
		AuditTimestamps: true,
		Relations: map[string]Relation{
			"created_by": {From: "user", LocalField: "created_by_id", ForeignField: "_id"},
		},
	})
	return repo, store
}

func TestCreateStampsAuditFields(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	alice := access.Authenticated("alice", 0)

	doc, err := repo.Create(ctx, alice, docdb.Document{"name": "report"})
	require.NoError(t, err)
	assert.NotEmpty(t, doc["_id"], "a created record carries its generated identifier")
	assert.Equal(t, "alice", doc["created_by_id"])
	assert.NotEmpty(t, doc["created_on"])
}

func TestCreateAnonymousLeavesOwnerUnstamped(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)

	doc, err := repo.Create(ctx, access.Anonymous, docdb.Document{"name": "report"})
	require.NoError(t, err)
	_, ok := doc["created_by_id"]
	assert.False(t, ok)
}

func TestUpdatePartialAndNotApplied(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	alice := access.Authenticated("alice", 0)
	bob := access.Authenticated("bob", 0)

	doc, err := repo.Create(ctx, alice, docdb.Document{"name": "report", "state": "open"})
	require.NoError(t, err)

	updated, err := repo.Update(ctx, bob, docdb.Document{"_id": doc["_id"], "state": "closed"})
	require.NoError(t, err)
	assert.Equal(t, "closed", updated["state"])
	assert.Equal(t, "report", updated["name"], "fields absent from the payload stay untouched")
	assert.Equal(t, "bob", updated["updated_by_id"])
	assert.NotEmpty(t, updated["updated_on"])

	// unknown identifier: nothing is modified
	_, err = repo.Update(ctx, bob, docdb.Document{"_id": "no-such-id", "state": "closed"})
	assert.Equal(t, ErrNotApplied, err)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	alice := access.Authenticated("alice", 0)

	doc, err := repo.Create(ctx, alice, docdb.Document{"name": "report"})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, docdb.Document{"_id": doc["_id"]}))
	assert.Equal(t, ErrNotApplied, repo.Delete(ctx, docdb.Document{"_id": doc["_id"]}))
}

func TestGetLimitIsCapped(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	alice := access.Authenticated("alice", 0)

	for i := 0; i < 120; i++ {
		_, err := repo.Create(ctx, alice, docdb.Document{"name": fmt.Sprintf("doc-%03d", i)})
		require.NoError(t, err)
	}

	docs, err := repo.Get(ctx, alice, Query{Limit: 1000, Mode: core.ModeList})
	require.NoError(t, err)
	assert.Len(t, docs, 100, "the limit is capped server-side")

	docs, err = repo.Get(ctx, alice, Query{Mode: core.ModeList})
	require.NoError(t, err)
	assert.Len(t, docs, 100, "the limit defaults to 100")

	docs, err = repo.Get(ctx, alice, Query{Limit: 7, Mode: core.ModeList})
	require.NoError(t, err)
	assert.Len(t, docs, 7)
}

func TestGetOwnScoping(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	alice := access.Authenticated("alice", 0)
	bob := access.Authenticated("bob", 0)

	_, err := repo.Create(ctx, alice, docdb.Document{"name": "alices"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, bob, docdb.Document{"name": "bobs"})
	require.NoError(t, err)

	docs, err := repo.Get(ctx, alice, Query{Mode: core.ModeListOwn})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "alices", docs[0]["name"])

	// the anonymous actor gets nothing, never an error and never all records
	docs, err = repo.Get(ctx, access.Anonymous, Query{Mode: core.ModeListOwn})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestGetSingleModes(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	alice := access.Authenticated("alice", 0)

	created, err := repo.Create(ctx, alice, docdb.Document{"name": "report"})
	require.NoError(t, err)

	docs, err := repo.Get(ctx, alice, Query{
		Filter: docdb.Document{"_id": created["_id"]},
		Mode:   core.ModeGetOne,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	docs, err = repo.Get(ctx, alice, Query{
		Filter: docdb.Document{"_id": "no-such-id"},
		Mode:   core.ModeExists,
	})
	require.NoError(t, err)
	assert.Empty(t, docs, "a single-result miss is empty, not an error")
}

func TestGetWithRelation(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepository(t)
	alice := access.Authenticated("alice", 0)

	_, err := store.InsertOne(ctx, "user", docdb.Document{"_id": "alice", "name": "Alice"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, alice, docdb.Document{"name": "report"})
	require.NoError(t, err)

	docs, err := repo.Get(ctx, alice, Query{
		Relations: []string{"created_by", "created_by", "bogus"},
		Mode:      core.ModeList,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	joined, ok := docs[0]["created_by"].(docdb.Document)
	require.True(t, ok)
	assert.Equal(t, "Alice", joined["name"])
}

func TestProbe(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	alice := access.Authenticated("alice", 0)

	_, err := repo.Create(ctx, alice, docdb.Document{"name": "report"})
	require.NoError(t, err)

	found, err := repo.Probe(ctx, map[string]interface{}{"created_by_id": "alice"})
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.Probe(ctx, map[string]interface{}{"created_by_id": "bob"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDuplicateKeySurfaces(t *testing.T) {
	ctx := context.Background()
	store := docdb.NewMemory()
	require.NoError(t, store.CreateIndex(ctx, "user", []string{"email"}, true))
	repo := New(store, Config{Collection: "user"})

	_, err := repo.Create(ctx, access.Anonymous, docdb.Document{"email": "alice@example.com"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, access.Anonymous, docdb.Document{"email": "alice@example.com"})
	assert.Equal(t, docdb.ErrDuplicateKey, err)
}
