// Package eventbus is the optional Kafka sink for opportunity/execution
// lifecycle events. Like internal/storage, it is wired in only when
// event_bus.enabled is set and never sits on the critical
// discovery/execution path.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/pkg/config"
	"github.com/nexusdex/arbengine/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// OpportunityEvent is the JSON payload published for every opportunity
// that reaches a terminal discovery/validation status.
type OpportunityEvent struct {
	ID                string    `json:"id"`
	Strategy          string    `json:"strategy"`
	Status            string    `json:"status"`
	ExpectedProfitWei  string    `json:"expected_profit_wei"`
	RejectionReason   string    `json:"rejection_reason,omitempty"`
	DiscoveredAt      time.Time `json:"discovered_at"`
}

// ExecutionEvent is the JSON payload published for every execution attempt
// that reaches a terminal status.
type ExecutionEvent struct {
	ID              string    `json:"id"`
	OpportunityID   string    `json:"opportunity_id"`
	Status          string    `json:"status"`
	ActualProfitWei string    `json:"actual_profit_wei,omitempty"`
	Error           string    `json:"error,omitempty"`
	EndedAt         time.Time `json:"ended_at"`
}

// Publisher produces opportunity/execution lifecycle events. Tests and
// callers that don't want a live broker can use NewMockPublisher.
type Publisher interface {
	PublishOpportunity(ctx context.Context, opp *types.Opportunity) error
	PublishExecution(ctx context.Context, result *types.ExecutionResult) error
	Close() error
}

// KafkaPublisher is the production Publisher, writing JSON-encoded events
// to the configured opportunity/execution topics.
type KafkaPublisher struct {
	cfg               config.EventBusConfig
	log               *logger.Logger
	opportunityWriter *kafka.Writer
	executionWriter   *kafka.Writer
}

// NewPublisher constructs a KafkaPublisher from cfg.
func NewPublisher(cfg config.EventBusConfig, log *logger.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("eventbus: no brokers configured")
	}
	opportunityTopic := cfg.OpportunityTopic
	if opportunityTopic == "" {
		opportunityTopic = "arbengine.opportunities"
	}
	executionTopic := cfg.ExecutionTopic
	if executionTopic == "" {
		executionTopic = "arbengine.executions"
	}

	return &KafkaPublisher{
		cfg: cfg,
		log: log.Named("eventbus"),
		opportunityWriter: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        opportunityTopic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: time.Second,
			WriteTimeout: 10 * time.Second,
			Compression:  kafka.Snappy,
		},
		executionWriter: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        executionTopic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: time.Second,
			WriteTimeout: 10 * time.Second,
			Compression:  kafka.Snappy,
		},
	}, nil
}

// PublishOpportunity writes an OpportunityEvent keyed by opportunity id.
func (p *KafkaPublisher) PublishOpportunity(ctx context.Context, opp *types.Opportunity) error {
	event := OpportunityEvent{
		ID:                opp.ID,
		Strategy:          string(opp.Strategy),
		Status:            string(opp.Status),
		ExpectedProfitWei: bigString(opp.ExpectedProfitWei),
		RejectionReason:   opp.RejectionReason,
		DiscoveredAt:      opp.DiscoveredAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventbus: marshal opportunity event: %w", err)
	}
	if err := p.opportunityWriter.WriteMessages(ctx, kafka.Message{Key: []byte(opp.ID), Value: payload, Time: time.Now()}); err != nil {
		p.log.Error("failed to publish opportunity event", zap.String("opportunity_id", opp.ID), zap.Error(err))
		return fmt.Errorf("eventbus: publish opportunity: %w", err)
	}
	return nil
}

// PublishExecution writes an ExecutionEvent keyed by execution id.
func (p *KafkaPublisher) PublishExecution(ctx context.Context, result *types.ExecutionResult) error {
	var endedAt time.Time
	if result.EndedAt != nil {
		endedAt = *result.EndedAt
	}
	event := ExecutionEvent{
		ID:              result.ID,
		OpportunityID:   result.OpportunityID,
		Status:          string(result.Status),
		ActualProfitWei: bigStringResult(result),
		Error:           result.Error,
		EndedAt:         endedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventbus: marshal execution event: %w", err)
	}
	if err := p.executionWriter.WriteMessages(ctx, kafka.Message{Key: []byte(result.ID), Value: payload, Time: time.Now()}); err != nil {
		p.log.Error("failed to publish execution event", zap.String("execution_id", result.ID), zap.Error(err))
		return fmt.Errorf("eventbus: publish execution: %w", err)
	}
	return nil
}

// Close flushes and closes both Kafka writers.
func (p *KafkaPublisher) Close() error {
	var firstErr error
	if err := p.opportunityWriter.Close(); err != nil {
		firstErr = err
	}
	if err := p.executionWriter.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// MockPublisher records events in memory, for tests that exercise the
// publishing call sites without a running Kafka broker.
type MockPublisher struct {
	mu          sync.Mutex
	log         *logger.Logger
	Opportunities []OpportunityEvent
	Executions    []ExecutionEvent
}

// NewMockPublisher constructs a MockPublisher.
func NewMockPublisher(log *logger.Logger) *MockPublisher {
	return &MockPublisher{log: log.Named("eventbus-mock")}
}

func (m *MockPublisher) PublishOpportunity(ctx context.Context, opp *types.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Opportunities = append(m.Opportunities, OpportunityEvent{
		ID:                opp.ID,
		Strategy:          string(opp.Strategy),
		Status:            string(opp.Status),
		ExpectedProfitWei: bigString(opp.ExpectedProfitWei),
		RejectionReason:   opp.RejectionReason,
		DiscoveredAt:      opp.DiscoveredAt,
	})
	return nil
}

func (m *MockPublisher) PublishExecution(ctx context.Context, result *types.ExecutionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var endedAt time.Time
	if result.EndedAt != nil {
		endedAt = *result.EndedAt
	}
	m.Executions = append(m.Executions, ExecutionEvent{
		ID:              result.ID,
		OpportunityID:   result.OpportunityID,
		Status:          string(result.Status),
		ActualProfitWei: bigStringResult(result),
		Error:           result.Error,
		EndedAt:         endedAt,
	})
	return nil
}

func (m *MockPublisher) Close() error { return nil }

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func bigStringResult(r *types.ExecutionResult) string {
	if r.ActualProfitWei == nil {
		return ""
	}
	return r.ActualProfitWei.String()
}
