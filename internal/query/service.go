package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// QueryService provides read-only access to the event log and the
// operations read model. All responses include as_of_sequence so
// callers can reason about freshness.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetOperationHistory returns applied operations, newest first, with
// cursor-based pagination. Both filters are optional.
func (qs *QueryService) GetOperationHistory(
	ctx context.Context,
	actor *uuid.UUID,
	opType *string,
	limit int,
	afterSequence *int64,
) ([]OperationResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT sequence, op_type, actor, receiver, assets, shares, fee,
		       EXTRACT(EPOCH FROM timestamp)::BIGINT
		FROM vault.operations
		WHERE TRUE
	`
	args := []interface{}{}
	argIdx := 1

	if actor != nil {
		query += fmt.Sprintf(" AND actor = $%d", argIdx)
		args = append(args, *actor)
		argIdx++
	}

	if opType != nil {
		query += fmt.Sprintf(" AND op_type = $%d", argIdx)
		args = append(args, *opType)
		argIdx++
	}

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []OperationResponse
	for rows.Next() {
		var o OperationResponse
		o.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&o.Sequence, &o.OpType, &o.Actor, &o.Receiver,
			&o.Assets, &o.Shares, &o.Fee, &o.Timestamp,
		); err != nil {
			return nil, err
		}
		ops = append(ops, o)
	}

	return ops, rows.Err()
}

// GetLiquidationHistory returns liquidation extractions and
// contributions, newest first.
func (qs *QueryService) GetLiquidationHistory(
	ctx context.Context,
	limit int,
	afterSequence *int64,
) ([]OperationResponse, error) {
	liqTypes := "YieldExtracted"
	ops, err := qs.GetOperationHistory(ctx, nil, &liqTypes, limit, afterSequence)
	if err != nil {
		return nil, err
	}

	contribTypes := "ContributionVerified"
	contribs, err := qs.GetOperationHistory(ctx, nil, &contribTypes, limit, afterSequence)
	if err != nil {
		return nil, err
	}

	return mergeBySequenceDesc(ops, contribs, limit), nil
}

// GetStats aggregates the operations read model.
func (qs *QueryService) GetStats(ctx context.Context) (*VaultStats, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	stats := &VaultStats{AsOfSequence: asOfSeq}

	err = qs.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(assets) FILTER (WHERE op_type IN ('Deposit', 'Mint', 'Sponsor')), 0),
			COALESCE(SUM(assets) FILTER (WHERE op_type IN ('Withdraw', 'Redeem')), 0),
			COALESCE(SUM(assets) FILTER (WHERE op_type = 'YieldExtracted'), 0),
			COALESCE(SUM(fee), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE op_type = 'YieldExtracted')
		FROM vault.operations
	`).Scan(
		&stats.TotalDeposited, &stats.TotalWithdrawn, &stats.TotalExtracted,
		&stats.TotalFeesPaid, &stats.OperationCount, &stats.LiquidationRuns,
	)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// GetEvent returns a raw envelope by sequence.
func (qs *QueryService) GetEvent(ctx context.Context, sequence int64) (*EventResponse, error) {
	var e EventResponse
	err := qs.db.QueryRowContext(ctx, `
		SELECT sequence, event_type, idempotency_key, payload,
		       state_hash, prev_hash, EXTRACT(EPOCH FROM timestamp)::BIGINT, source_sequence
		FROM vault.events
		WHERE sequence = $1
	`, sequence).Scan(
		&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Payload,
		&e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity across the event log.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM vault.events e1
		JOIN vault.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := qs.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM vault.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// mergeBySequenceDesc merges two sequence-descending slices, keeping at
// most limit entries.
func mergeBySequenceDesc(a, b []OperationResponse, limit int) []OperationResponse {
	out := make([]OperationResponse, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Sequence > b[j].Sequence {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
