//go:build integration

package storage

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/pkg/config"
	"github.com/nexusdex/arbengine/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type StorageIntegrationTestSuite struct {
	suite.Suite
	store     *Store
	container testcontainers.Container
	ctx       context.Context
}

func (s *StorageIntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "arbengine_test",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	s.Require().NoError(err)
	s.container = container

	host, err := container.Host(s.ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(s.ctx, "5432")
	s.Require().NoError(err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=arbengine_test sslmode=disable", host, port.Port())
	store, err := Open(config.StorageConfig{DSN: dsn, MigrationsPath: "../../db/migrations"}, logger.New("test"))
	s.Require().NoError(err)
	s.store = store
}

func (s *StorageIntegrationTestSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
	if s.container != nil {
		s.container.Terminate(s.ctx)
	}
}

func (s *StorageIntegrationTestSuite) TestSaveAndGetOpportunity() {
	route := types.Route{}
	opp := &types.Opportunity{
		ID:                "opp-1",
		Strategy:          types.StrategyCrossVenue,
		Route:             route,
		InputWei:          big.NewInt(1000),
		ExpectedOutputWei: big.NewInt(1100),
		ExpectedProfitWei: big.NewInt(100),
		Confidence:        decimal.NewFromFloat(0.9),
		Status:            types.StatusSucceeded,
		DiscoveredAt:      time.Now(),
	}

	s.Require().NoError(s.store.SaveOpportunity(s.ctx, opp))

	rec, err := s.store.GetOpportunity(s.ctx, "opp-1")
	s.Require().NoError(err)
	s.Equal("opp-1", rec.ID)
	s.Equal("1000", rec.InputWei)
}

func (s *StorageIntegrationTestSuite) TestSaveExecutionResultAndList() {
	opp := &types.Opportunity{ID: "opp-2", Strategy: types.StrategyTriangular, Status: types.StatusPending, Confidence: decimal.NewFromInt(1), DiscoveredAt: time.Now()}
	s.Require().NoError(s.store.SaveOpportunity(s.ctx, opp))

	result := &types.ExecutionResult{
		ID:              "exec-1",
		OpportunityID:   "opp-2",
		StrategyID:      "triangular",
		Status:          types.StatusSucceeded,
		ActualOutputWei: big.NewInt(500),
		ActualProfitWei: big.NewInt(50),
		StartedAt:       time.Now(),
	}
	s.Require().NoError(s.store.SaveExecutionResult(s.ctx, result))

	recs, err := s.store.ListExecutionsByOpportunity(s.ctx, "opp-2")
	s.Require().NoError(err)
	s.Len(recs, 1)
	s.Equal("exec-1", recs[0].ID)
}

func TestStorageIntegrationSuite(t *testing.T) {
	suite.Run(t, new(StorageIntegrationTestSuite))
}
