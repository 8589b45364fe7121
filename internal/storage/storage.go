// Package storage is the optional Postgres sink for opportunities and
// execution results. It is wired in only when storage.enabled is set; the
// engine's core pipeline never depends on it directly.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"math/big"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/pkg/config"
	"github.com/nexusdex/arbengine/pkg/logger"
)

// opportunityRecord is the sqlx scan target for the opportunities table.
type opportunityRecord struct {
	ID                string    `db:"id"`
	Strategy          string    `db:"strategy"`
	InputWei          string    `db:"input_wei"`
	ExpectedOutputWei string    `db:"expected_output_wei"`
	ExpectedProfitWei string    `db:"expected_profit_wei"`
	Confidence        string    `db:"confidence"`
	Status            string    `db:"status"`
	RejectionReason   string    `db:"rejection_reason"`
	DiscoveredAt      time.Time `db:"discovered_at"`
}

// executionRecord is the sqlx scan target for the executions table.
type executionRecord struct {
	ID              string     `db:"id"`
	OpportunityID   string     `db:"opportunity_id"`
	StrategyID      string     `db:"strategy_id"`
	Status          string     `db:"status"`
	ActualOutputWei string     `db:"actual_output_wei"`
	ActualProfitWei string     `db:"actual_profit_wei"`
	GasUsed         *int64     `db:"gas_used"`
	FlashLoanFeeWei string     `db:"flash_loan_fee_wei"`
	Error           string     `db:"error"`
	StartedAt       time.Time  `db:"started_at"`
	EndedAt         *time.Time `db:"ended_at"`
}

// Store persists opportunities and execution results to Postgres.
type Store struct {
	db  *sqlx.DB
	log *logger.Logger
}

// Open connects to Postgres per cfg, applies pending migrations if
// cfg.MigrationsPath is set, and returns a ready Store.
func Open(cfg config.StorageConfig, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if cfg.MigrationsPath != "" {
		if err := runMigrations(db, cfg.MigrationsPath); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Store{db: db, log: log.Named("storage")}, nil
}

func runMigrations(db *sqlx.DB, path string) error {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("storage: migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("storage: migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("storage: migrate up: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveOpportunity inserts or updates an opportunity's terminal state.
func (s *Store) SaveOpportunity(ctx context.Context, opp *types.Opportunity) error {
	query := `
		INSERT INTO opportunities (
			id, strategy, input_wei, expected_output_wei, expected_profit_wei,
			confidence, status, rejection_reason, discovered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			rejection_reason = EXCLUDED.rejection_reason
	`
	_, err := s.db.ExecContext(ctx, query,
		opp.ID,
		string(opp.Strategy),
		bigString(opp.InputWei),
		bigString(opp.ExpectedOutputWei),
		bigString(opp.ExpectedProfitWei),
		opp.Confidence.String(),
		string(opp.Status),
		opp.RejectionReason,
		opp.DiscoveredAt,
	)
	if err != nil {
		s.log.Error(fmt.Sprintf("failed to save opportunity: %v", err))
		return fmt.Errorf("storage: save opportunity: %w", err)
	}
	return nil
}

// GetOpportunity retrieves a persisted opportunity record by id.
func (s *Store) GetOpportunity(ctx context.Context, id string) (*opportunityRecord, error) {
	query := `
		SELECT id, strategy, input_wei, expected_output_wei, expected_profit_wei,
			confidence, status, rejection_reason, discovered_at
		FROM opportunities WHERE id = $1
	`
	var rec opportunityRecord
	if err := s.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("storage: get opportunity: %w", err)
	}
	return &rec, nil
}

// SaveExecutionResult inserts or updates an execution result's terminal state.
func (s *Store) SaveExecutionResult(ctx context.Context, result *types.ExecutionResult) error {
	query := `
		INSERT INTO executions (
			id, opportunity_id, strategy_id, status, actual_output_wei,
			actual_profit_wei, gas_used, flash_loan_fee_wei, error, started_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			actual_output_wei = EXCLUDED.actual_output_wei,
			actual_profit_wei = EXCLUDED.actual_profit_wei,
			gas_used = EXCLUDED.gas_used,
			error = EXCLUDED.error,
			ended_at = EXCLUDED.ended_at
	`
	var gasUsed *int64
	if result.GasUsed != nil {
		v := int64(*result.GasUsed)
		gasUsed = &v
	}
	_, err := s.db.ExecContext(ctx, query,
		result.ID,
		result.OpportunityID,
		result.StrategyID,
		string(result.Status),
		bigString(result.ActualOutputWei),
		bigString(result.ActualProfitWei),
		gasUsed,
		bigString(result.FlashLoanFeeWei),
		result.Error,
		result.StartedAt,
		result.EndedAt,
	)
	if err != nil {
		s.log.Error(fmt.Sprintf("failed to save execution result: %v", err))
		return fmt.Errorf("storage: save execution result: %w", err)
	}
	return nil
}

// ListExecutionsByOpportunity returns every recorded execution attempt
// against one opportunity, most recent first.
func (s *Store) ListExecutionsByOpportunity(ctx context.Context, opportunityID string) ([]executionRecord, error) {
	query := `
		SELECT id, opportunity_id, strategy_id, status, actual_output_wei,
			actual_profit_wei, gas_used, flash_loan_fee_wei, error, started_at, ended_at
		FROM executions
		WHERE opportunity_id = $1
		ORDER BY started_at DESC
	`
	var recs []executionRecord
	if err := s.db.SelectContext(ctx, &recs, query, opportunityID); err != nil {
		return nil, fmt.Errorf("storage: list executions: %w", err)
	}
	return recs, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
