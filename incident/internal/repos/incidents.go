package repos

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"factory-digital-twin/incident/internal/models"
)

var ErrIncidentNotFound = errors.New("incident not found")

const incidentColumns = `
	id, factory_id, type, severity, description,
	position_x, position_y, position_z,
	npc_id, is_resolved, timestamp, resolved_at
`

type IncidentsRepo struct {
	pool *pgxpool.Pool
}

func NewIncidentsRepo(pool *pgxpool.Pool) *IncidentsRepo {
	return &IncidentsRepo{pool: pool}
}

func scanIncident(row pgx.Row) (models.Incident, error) {
	var inc models.Incident
	err := row.Scan(
		&inc.ID, &inc.FactoryID, &inc.Type, &inc.Severity, &inc.Description,
		&inc.PositionX, &inc.PositionY, &inc.PositionZ,
		&inc.NPCID, &inc.IsResolved, &inc.Timestamp, &inc.ResolvedAt,
	)
	return inc, err
}

func (r *IncidentsRepo) Insert(ctx context.Context, inc models.Incident) (models.Incident, error) {
	if inc.ID == uuid.Nil {
		inc.ID = uuid.New()
	}
	if inc.Timestamp.IsZero() {
		inc.Timestamp = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO incidents (
			id, factory_id, type, severity, description,
			position_x, position_y, position_z,
			npc_id, is_resolved, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10)
	`,
		inc.ID, inc.FactoryID, inc.Type, inc.Severity, inc.Description,
		inc.PositionX, inc.PositionY, inc.PositionZ,
		inc.NPCID, inc.Timestamp,
	)
	if err != nil {
		return models.Incident{}, err
	}
	inc.IsResolved = false
	inc.ResolvedAt = nil
	return inc, nil
}

type ListFilter struct {
	FactoryID  *uuid.UUID
	IsResolved *bool
	Limit      int
	Offset     int
}

func (r *IncidentsRepo) List(ctx context.Context, filter ListFilter) ([]models.Incident, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}

	var (
		conds []string
		args  []any
	)
	if filter.FactoryID != nil {
		args = append(args, *filter.FactoryID)
		conds = append(conds, "factory_id = $"+strconv.Itoa(len(args)))
	}
	if filter.IsResolved != nil {
		args = append(args, *filter.IsResolved)
		conds = append(conds, "is_resolved = $"+strconv.Itoa(len(args)))
	}

	query := "SELECT " + incidentColumns + " FROM incidents"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit)
	query += " ORDER BY timestamp DESC LIMIT $" + strconv.Itoa(len(args))
	args = append(args, filter.Offset)
	query += " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

func (r *IncidentsRepo) GetByID(ctx context.Context, incidentID uuid.UUID) (models.Incident, error) {
	inc, err := scanIncident(r.pool.QueryRow(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE id = $1
	`, incidentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Incident{}, ErrIncidentNotFound
	}
	return inc, err
}

// Update applies a partial update. resolved_at is stamped on the transition
// into the resolved state and never overwritten afterwards.
func (r *IncidentsRepo) Update(ctx context.Context, incidentID uuid.UUID, description *string, isResolved *bool) (models.Incident, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Incident{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	inc, err := scanIncident(tx.QueryRow(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE id = $1
		FOR UPDATE
	`, incidentID))
	if errors.Is(err, pgx.ErrNoRows) {
		err = ErrIncidentNotFound
		return models.Incident{}, err
	}
	if err != nil {
		return models.Incident{}, err
	}

	if description != nil {
		inc.Description = description
	}
	if isResolved != nil {
		if *isResolved && !inc.IsResolved {
			now := time.Now().UTC()
			inc.ResolvedAt = &now
		}
		inc.IsResolved = *isResolved
	}

	_, err = tx.Exec(ctx, `
		UPDATE incidents
		SET description = $2, is_resolved = $3, resolved_at = $4
		WHERE id = $1
	`, incidentID, inc.Description, inc.IsResolved, inc.ResolvedAt)
	if err != nil {
		return models.Incident{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Incident{}, err
	}
	return inc, nil
}

func (r *IncidentsRepo) Delete(ctx context.Context, incidentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM incidents WHERE id = $1`, incidentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIncidentNotFound
	}
	return nil
}
