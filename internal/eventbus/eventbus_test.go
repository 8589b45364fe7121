package eventbus

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/pkg/config"
	"github.com/nexusdex/arbengine/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockPublisherRecordsOpportunityEvent(t *testing.T) {
	pub := NewMockPublisher(logger.New("test"))
	opp := &types.Opportunity{
		ID:                "opp-1",
		Strategy:          types.StrategyTriangular,
		Status:            types.StatusSucceeded,
		ExpectedProfitWei: big.NewInt(500),
		DiscoveredAt:      time.Now(),
		Confidence:        decimal.NewFromInt(1),
	}

	require.NoError(t, pub.PublishOpportunity(context.Background(), opp))
	require.Len(t, pub.Opportunities, 1)
	assert.Equal(t, "opp-1", pub.Opportunities[0].ID)
	assert.Equal(t, "500", pub.Opportunities[0].ExpectedProfitWei)
}

func TestMockPublisherRecordsExecutionEvent(t *testing.T) {
	pub := NewMockPublisher(logger.New("test"))
	now := time.Now()
	result := &types.ExecutionResult{
		ID:              "exec-1",
		OpportunityID:   "opp-1",
		Status:          types.StatusSucceeded,
		ActualProfitWei: big.NewInt(42),
		EndedAt:         &now,
	}

	require.NoError(t, pub.PublishExecution(context.Background(), result))
	require.Len(t, pub.Executions, 1)
	assert.Equal(t, "exec-1", pub.Executions[0].ID)
	assert.Equal(t, "42", pub.Executions[0].ActualProfitWei)
}

func TestMockPublisherHandlesNilProfit(t *testing.T) {
	pub := NewMockPublisher(logger.New("test"))
	result := &types.ExecutionResult{ID: "exec-2", Status: types.StatusFailed}

	require.NoError(t, pub.PublishExecution(context.Background(), result))
	assert.Equal(t, "", pub.Executions[0].ActualProfitWei)
}

func TestNewPublisherRequiresBrokers(t *testing.T) {
	_, err := NewPublisher(config.EventBusConfig{}, logger.New("test"))
	assert.Error(t, err)
}
