package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inspectcall-backend/internal/domain"
	apperrors "inspectcall-backend/pkg/errors"
)

// CallRepository handles call data operations
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

// Create creates a new call record
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO calls (
			call_id, coordinator_id, inspector_id, inspection_reference,
			status, started_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		call.CallID,
		call.CoordinatorID,
		call.InspectorID,
		call.InspectionReference,
		call.Status,
		call.StartedAt,
		call.Metadata,
	)

	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	return nil
}

// UpdateStatus updates call status
func (r *CallRepository) UpdateStatus(ctx context.Context, callID uuid.UUID, status domain.CallStatus) error {
	query := `
		UPDATE calls
		SET status = $2
		WHERE call_id = $1
	`

	_, err := r.pool.Exec(ctx, query, callID, status)
	if err != nil {
		return fmt.Errorf("failed to update call status: %w", err)
	}

	return nil
}

// EndCall marks a call as ended. ended_at is written once; a second call is a
// no-op because of the status guard.
func (r *CallRepository) EndCall(ctx context.Context, callID uuid.UUID, endedAt time.Time) error {
	query := `
		UPDATE calls
		SET status = 'ended',
		    ended_at = $2
		WHERE call_id = $1 AND status <> 'ended'
	`

	_, err := r.pool.Exec(ctx, query, callID, endedAt)
	if err != nil {
		return fmt.Errorf("failed to end call: %w", err)
	}

	return nil
}

// UpdateLocation overwrites the inspector's latest GPS snapshot
func (r *CallRepository) UpdateLocation(ctx context.Context, callID uuid.UUID, location *domain.Location) error {
	query := `
		UPDATE calls
		SET inspector_location = $2
		WHERE call_id = $1
	`

	_, err := r.pool.Exec(ctx, query, callID, location)
	if err != nil {
		return fmt.Errorf("failed to update inspector location: %w", err)
	}

	return nil
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	query := `
		SELECT call_id, coordinator_id, inspector_id, inspection_reference,
		       status, started_at, ended_at, inspector_location, metadata
		FROM calls
		WHERE call_id = $1
	`

	call := &domain.Call{}
	err := r.pool.QueryRow(ctx, query, callID).Scan(
		&call.CallID,
		&call.CoordinatorID,
		&call.InspectorID,
		&call.InspectionReference,
		&call.Status,
		&call.StartedAt,
		&call.EndedAt,
		&call.InspectorLocation,
		&call.Metadata,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.CallNotFoundError()
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	return call, nil
}

// GetUserCalls retrieves the calls a user participated in, newest first
func (r *CallRepository) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	query := `
		SELECT call_id, coordinator_id, inspector_id, inspection_reference,
		       status, started_at, ended_at, inspector_location, metadata
		FROM calls
		WHERE coordinator_id = $1 OR inspector_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get user calls: %w", err)
	}
	defer rows.Close()

	var calls []*domain.Call
	for rows.Next() {
		call := &domain.Call{}
		err := rows.Scan(
			&call.CallID,
			&call.CoordinatorID,
			&call.InspectorID,
			&call.InspectionReference,
			&call.Status,
			&call.StartedAt,
			&call.EndedAt,
			&call.InspectorLocation,
			&call.Metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}

	return calls, nil
}
