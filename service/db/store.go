package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/swapper/service/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Swap statuses owned by the service. Terminal pipeline outcomes are stored
// under the pipeline's own state names (confirmed, rejected, signed).
const (
	StatusRequested = "requested"
	StatusRunning   = "running"
	StatusFailed    = "failed"
)

// ErrSwapNotFound is returned when no swap has the requested id.
var ErrSwapNotFound = errors.New("swap not found")

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil, no query metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Swap is one requested swap and how far it got.
type Swap struct {
	ID              uuid.UUID
	Wallet          string
	InputMint       string
	OutputMint      string
	Amount          int64
	SlippageBps     int32
	DryRun          bool
	Status          string
	Phase           *string
	Signature       *string
	Error           *string
	QuotedOutAmount *int64
	Attempts        int32
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateSwapParams contains the parameters for creating a swap.
type CreateSwapParams struct {
	ID          uuid.UUID
	Wallet      string
	InputMint   string
	OutputMint  string
	Amount      int64
	SlippageBps int32
	DryRun      bool
}

// UpdateSwapResultParams records the outcome of a workflow run.
type UpdateSwapResultParams struct {
	ID              uuid.UUID
	Status          string
	Phase           *string
	Signature       *string
	Error           *string
	QuotedOutAmount *int64
	Attempts        int32
}

// ListSwapsParams contains pagination parameters. An empty Wallet lists
// every wallet.
type ListSwapsParams struct {
	Wallet string
	Limit  int32
	Offset int32
}

const swapColumns = `id, wallet, input_mint, output_mint, amount, slippage_bps, dry_run,
	status, phase, signature, error, quoted_out_amount, attempts, created_at, updated_at`

// CreateSwap inserts a swap in the requested state.
func (s *Store) CreateSwap(ctx context.Context, params CreateSwapParams) (*Swap, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO swaps (id, wallet, input_mint, output_mint, amount, slippage_bps, dry_run, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+swapColumns,
		pgUUID(params.ID), params.Wallet, params.InputMint, params.OutputMint,
		params.Amount, params.SlippageBps, params.DryRun, StatusRequested,
	)
	swap, err := scanSwap(row)
	s.record("create", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create swap: %w", err)
	}
	return swap, nil
}

// GetSwap retrieves a swap by id.
func (s *Store) GetSwap(ctx context.Context, id uuid.UUID) (*Swap, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `SELECT `+swapColumns+` FROM swaps WHERE id = $1`, pgUUID(id))
	swap, err := scanSwap(row)
	s.record("get", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSwapNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}
	return swap, nil
}

// ListSwaps retrieves swaps, newest first.
func (s *Store) ListSwaps(ctx context.Context, params ListSwapsParams) ([]*Swap, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT `+swapColumns+` FROM swaps
		WHERE ($1 = '' OR wallet = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`,
		params.Wallet, params.Limit, params.Offset,
	)
	if err != nil {
		s.record("list", start, err)
		return nil, fmt.Errorf("failed to list swaps: %w", err)
	}
	defer rows.Close()

	var swaps []*Swap
	for rows.Next() {
		swap, err := scanSwap(rows)
		if err != nil {
			s.record("list", start, err)
			return nil, fmt.Errorf("failed to scan swap: %w", err)
		}
		swaps = append(swaps, swap)
	}
	err = rows.Err()
	s.record("list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list swaps: %w", err)
	}
	return swaps, nil
}

// UpdateSwapStatus moves a swap to status without touching its result.
func (s *Store) UpdateSwapStatus(ctx context.Context, id uuid.UUID, status string) (*Swap, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		UPDATE swaps SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+swapColumns,
		pgUUID(id), status,
	)
	swap, err := scanSwap(row)
	s.record("update_status", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSwapNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update swap status: %w", err)
	}
	return swap, nil
}

// UpdateSwapResult stores the final outcome of a swap.
func (s *Store) UpdateSwapResult(ctx context.Context, params UpdateSwapResultParams) (*Swap, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		UPDATE swaps SET
			status = $2,
			phase = $3,
			signature = $4,
			error = $5,
			quoted_out_amount = $6,
			attempts = $7,
			updated_at = now()
		WHERE id = $1
		RETURNING `+swapColumns,
		pgUUID(params.ID),
		params.Status,
		pgtextFromStringPtr(params.Phase),
		pgtextFromStringPtr(params.Signature),
		pgtextFromStringPtr(params.Error),
		pgint8FromInt64Ptr(params.QuotedOutAmount),
		params.Attempts,
	)
	swap, err := scanSwap(row)
	s.record("update_result", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSwapNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update swap result: %w", err)
	}
	return swap, nil
}

// CountSwapsByStatus returns how many swaps are in each status.
func (s *Store) CountSwapsByStatus(ctx context.Context) (map[string]int64, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM swaps GROUP BY status`)
	if err != nil {
		s.record("count", start, err)
		return nil, fmt.Errorf("failed to count swaps: %w", err)
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (statusCount, error) {
		var sc statusCount
		err := row.Scan(&sc.status, &sc.count)
		return sc, err
	})
	s.record("count", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to count swaps: %w", err)
	}

	out := make(map[string]int64, len(counts))
	for _, c := range counts {
		out[c.status] = c.count
	}
	return out, nil
}

type statusCount struct {
	status string
	count  int64
}

func (s *Store) record(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
	}
	s.metrics.RecordDBQuery(operation, "swaps", time.Since(start).Seconds(), err)
}

// Helper functions to convert between pgx types and domain types

func scanSwap(row pgx.Row) (*Swap, error) {
	var (
		swap      Swap
		id        pgtype.UUID
		phase     pgtype.Text
		signature pgtype.Text
		errText   pgtype.Text
		quoted    pgtype.Int8
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&id,
		&swap.Wallet,
		&swap.InputMint,
		&swap.OutputMint,
		&swap.Amount,
		&swap.SlippageBps,
		&swap.DryRun,
		&swap.Status,
		&phase,
		&signature,
		&errText,
		&quoted,
		&swap.Attempts,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	swap.ID = uuid.UUID(id.Bytes)
	swap.Phase = stringPtrFromPgtext(phase)
	swap.Signature = stringPtrFromPgtext(signature)
	swap.Error = stringPtrFromPgtext(errText)
	swap.QuotedOutAmount = int64PtrFromPgint8(quoted)
	swap.CreatedAt = createdAt.Time
	swap.UpdatedAt = updatedAt.Time
	return &swap, nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func pgint8FromInt64Ptr(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{Valid: false}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

func int64PtrFromPgint8(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
