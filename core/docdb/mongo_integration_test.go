package docdb

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MongoSuite runs the Store contract against a real MongoDB in a container.
// Set INTEGRATION_TEST to enable it, a Docker daemon is required.
type MongoSuite struct {
	suite.Suite
	container testcontainers.Container
	store     *Mongo
}

func TestMongoSuite(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") == "" {
		t.Skip("INTEGRATION_TEST is not set")
	}
	suite.Run(t, new(MongoSuite))
}

func (s *MongoSuite) SetupSuite() {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.container = container

	host, err := container.Host(ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(ctx, "27017")
	s.Require().NoError(err)

	store, err := OpenMongo(ctx, fmt.Sprintf("mongodb://%s:%s", host, port.Port()), "docuform_test")
	s.Require().NoError(err)
	s.store = store
}

func (s *MongoSuite) TearDownSuite() {
	ctx := context.Background()
	if s.store != nil {
		s.store.Close(ctx)
	}
	if s.container != nil {
		s.container.Terminate(ctx)
	}
}

func (s *MongoSuite) TestCrud() {
	ctx := context.Background()

	id, err := s.store.InsertOne(ctx, "crud", Document{"_id": "d1", "name": "report"})
	s.Require().NoError(err)
	s.Equal("d1", id)

	doc, err := s.store.FindOne(ctx, "crud", Document{"_id": "d1"})
	s.Require().NoError(err)
	s.Equal("report", doc["name"])

	matched, modified, err := s.store.UpdateOne(ctx, "crud", Document{"_id": "d1"}, Document{"name": "revised"})
	s.Require().NoError(err)
	s.Equal(int64(1), matched)
	s.Equal(int64(1), modified)

	deleted, err := s.store.DeleteOne(ctx, "crud", Document{"_id": "d1"})
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	_, err = s.store.FindOne(ctx, "crud", Document{"_id": "d1"})
	s.Equal(ErrNoDocuments, err)
}

func (s *MongoSuite) TestUniqueIndex() {
	ctx := context.Background()
	s.Require().NoError(s.store.CreateIndex(ctx, "accounts", []string{"email"}, true))

	_, err := s.store.InsertOne(ctx, "accounts", Document{"_id": "u1", "email": "alice@example.com"})
	s.Require().NoError(err)
	_, err = s.store.InsertOne(ctx, "accounts", Document{"_id": "u2", "email": "alice@example.com"})
	s.Equal(ErrDuplicateKey, err)
}

func (s *MongoSuite) TestAggregateLookup() {
	ctx := context.Background()
	_, err := s.store.InsertOne(ctx, "owners", Document{"_id": "u1", "name": "alice"})
	s.Require().NoError(err)
	_, err = s.store.InsertOne(ctx, "records", Document{"_id": "r1", "owner_id": "u1"})
	s.Require().NoError(err)
	_, err = s.store.InsertOne(ctx, "records", Document{"_id": "r2", "owner_id": "nobody"})
	s.Require().NoError(err)

	plan := BuildQuery(Document{}, []Lookup{
		{From: "owners", LocalField: "owner_id", ForeignField: "_id", As: "owner"},
	}, nil, []SortField{{Field: "_id", Direction: 1}}, 0, 100, false)

	docs, err := s.store.Aggregate(ctx, "records", plan.Pipeline)
	s.Require().NoError(err)
	s.Require().Len(docs, 1, "records without a matching owner drop out")
	s.Equal("r1", docs[0]["_id"])
}

func (s *MongoSuite) TestFindWithOptions() {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.store.InsertOne(ctx, "paged", Document{"_id": fmt.Sprintf("p%d", i), "n": i})
		s.Require().NoError(err)
	}

	docs, err := s.store.Find(ctx, "paged", Document{}, FindOptions{
		Sort:  []SortField{{Field: "_id", Direction: -1}},
		Skip:  1,
		Limit: 2,
	})
	s.Require().NoError(err)
	s.Require().Len(docs, 2)
	s.Equal("p3", docs[0]["_id"])
	s.Equal("p2", docs[1]["_id"])
}
