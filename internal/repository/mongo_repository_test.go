package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"momo-payments/internal/domain"
	"momo-payments/internal/errors"
)

type MongoRepositorySuite struct {
	suite.Suite
	container testcontainers.Container
	client    *mongo.Client
	db        *mongo.Database
	repo      domain.TransactionRepository
}

func (s *MongoRepositorySuite) SetupSuite() {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(s.T(), err, "failed to start mongo container")
	s.container = container

	host, err := container.Host(ctx)
	require.NoError(s.T(), err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(s.T(), err)

	s.client, err = mongo.Connect(ctx, options.Client().ApplyURI(fmt.Sprintf("mongodb://%s:%s", host, port.Port())))
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.client.Ping(ctx, nil))

	s.db = s.client.Database("momo_payments_test")
	require.NoError(s.T(), EnsureMongoIndexes(ctx, s.db))
	s.repo = NewMongoTransactionRepository(s.db, discardLogger())
}

func (s *MongoRepositorySuite) TearDownSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.client != nil {
		s.client.Disconnect(ctx)
	}
	if s.container != nil {
		s.container.Terminate(ctx)
	}
}

func (s *MongoRepositorySuite) SetupTest() {
	_, err := s.db.Collection(transactionsCollection).DeleteMany(context.Background(), map[string]any{})
	s.Require().NoError(err)
}

func (s *MongoRepositorySuite) TestLifecycle() {
	ctx := context.Background()
	tx := newPendingTransaction("m-1")

	s.Require().NoError(s.repo.Create(ctx, tx))

	dup := newPendingTransaction("m-1")
	dup.Reference = tx.Reference
	s.ErrorIs(s.repo.Create(ctx, dup), errors.ErrDuplicateReference)

	providerID := "abc123"
	s.Require().NoError(s.repo.UpdateByID(ctx, tx.ID, domain.TransactionUpdate{ProviderTransactionID: &providerID}))
	other := "zzz"
	s.ErrorIs(s.repo.UpdateByID(ctx, tx.ID, domain.TransactionUpdate{ProviderTransactionID: &other}), errors.ErrTransactionNotPending)

	found, err := s.repo.FindByReference(ctx, tx.Reference)
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(tx.ID, found.ID)
	s.True(tx.Amount.Equal(found.Amount))
	s.True(tx.CreatedAt.Equal(found.CreatedAt))
	s.Require().NotNil(found.ProviderTransactionID)
	s.Equal("abc123", *found.ProviderTransactionID)
	s.Equal(domain.StatusPending, found.Status)
}

func (s *MongoRepositorySuite) TestFailedUpdateMergesMetadata() {
	ctx := context.Background()
	tx := newPendingTransaction("m-1")
	s.Require().NoError(s.repo.Create(ctx, tx))

	failed := domain.StatusFailed
	s.Require().NoError(s.repo.UpdateByID(ctx, tx.ID, domain.TransactionUpdate{
		Status: &failed,
		Metadata: map[string]any{
			domain.MetadataError:         "insufficient funds",
			domain.MetadataProviderError: true,
		},
	}))

	found, err := s.repo.FindByReference(ctx, tx.Reference)
	s.Require().NoError(err)
	s.Equal(domain.StatusFailed, found.Status)
	s.Equal("insufficient funds", found.Metadata[domain.MetadataError])
	s.Equal("A-1", found.Metadata["order_id"])

	s.ErrorIs(s.repo.UpdateByID(ctx, tx.ID, domain.TransactionUpdate{Status: &failed}), errors.ErrTransactionNotPending)
	s.ErrorIs(s.repo.UpdateByID(ctx, uuid.New(), domain.TransactionUpdate{Status: &failed}), errors.ErrTransactionNotFound)
}

func (s *MongoRepositorySuite) TestNestedMetadataRoundTrip() {
	ctx := context.Background()
	tx := newPendingTransaction("m-1")
	tx.Metadata["customer"] = map[string]any{"name": "Awa", "tags": []any{"vip", "new"}}
	s.Require().NoError(s.repo.Create(ctx, tx))

	found, err := s.repo.FindByReference(ctx, tx.Reference)
	s.Require().NoError(err)

	customer, ok := found.Metadata["customer"].(map[string]any)
	s.Require().True(ok, "nested metadata decoded as %T", found.Metadata["customer"])
	s.Equal("Awa", customer["name"])
	s.Equal([]any{"vip", "new"}, customer["tags"])
}

func TestPlainValue(t *testing.T) {
	in := primitive.D{
		{Key: "name", Value: "Awa"},
		{Key: "tags", Value: primitive.A{"vip", primitive.D{{Key: "level", Value: int32(2)}}}},
		{Key: "extra", Value: primitive.M{"k": primitive.A{}}},
	}

	assert.Equal(t, map[string]any{
		"name":  "Awa",
		"tags":  []any{"vip", map[string]any{"level": int32(2)}},
		"extra": map[string]any{"k": []any{}},
	}, plainValue(in))
}

func (s *MongoRepositorySuite) TestFindByMerchant() {
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		s.Require().NoError(s.repo.Create(ctx, newPendingTransaction("m-1")))
		time.Sleep(2 * time.Millisecond)
	}

	txs, err := s.repo.FindByMerchant(ctx, "m-1", domain.MerchantHistoryLimit)
	s.Require().NoError(err)
	s.Require().Len(txs, domain.MerchantHistoryLimit)
	for i := 1; i < len(txs); i++ {
		s.True(txs[i-1].CreatedAt.After(txs[i].CreatedAt))
	}

	none, err := s.repo.FindByMerchant(ctx, "m-unknown", domain.MerchantHistoryLimit)
	s.NoError(err)
	s.Empty(none)
}

func TestMongoRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping mongo integration test in short mode")
	}
	suite.Run(t, new(MongoRepositorySuite))
}
