package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Domenick1991/deskbooking/internal/domain"
)

type GroupRepository interface {
	Create(ctx context.Context, group *domain.GroupBooking) error
	GetByID(ctx context.Context, id string) (*domain.GroupBooking, error)
	Delete(ctx context.Context, id string) error
	// DeleteIfEmpty removes the group once none of its bookings still holds a table.
	DeleteIfEmpty(ctx context.Context, id string) (bool, error)
}

type PGGroupRepository struct {
	db DB
}

func NewGroupRepository(db DB) GroupRepository {
	return &PGGroupRepository{db: db}
}

func (r *PGGroupRepository) Create(ctx context.Context, group *domain.GroupBooking) error {
	guests, err := json.Marshal(group.Guests)
	if err != nil {
		return fmt.Errorf("marshal guests: %w", err)
	}
	return conn(ctx, r.db).QueryRow(ctx, `INSERT INTO group_bookings (id, author_id, kind, guests, date_from, date_to)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		group.ID, group.AuthorID, string(group.Kind), guests, group.DateFrom, group.DateTo).
		Scan(&group.CreatedAt)
}

func (r *PGGroupRepository) GetByID(ctx context.Context, id string) (*domain.GroupBooking, error) {
	var (
		g      domain.GroupBooking
		guests []byte
	)
	err := conn(ctx, r.db).QueryRow(ctx, `SELECT id, author_id, kind, guests, date_from, date_to, created_at FROM group_bookings WHERE id=$1`, id).
		Scan(&g.ID, &g.AuthorID, &g.Kind, &guests, &g.DateFrom, &g.DateTo, &g.CreatedAt)
	if err != nil {
		return nil, notFound(err, "group "+id)
	}
	if len(guests) > 0 {
		if err := json.Unmarshal(guests, &g.Guests); err != nil {
			return nil, fmt.Errorf("decode guests of group %s: %w", id, err)
		}
	}
	return &g, nil
}

func (r *PGGroupRepository) Delete(ctx context.Context, id string) error {
	_, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM group_bookings WHERE id=$1`, id)
	return err
}

func (r *PGGroupRepository) DeleteIfEmpty(ctx context.Context, id string) (bool, error) {
	cmd, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM group_bookings g WHERE g.id=$1
		AND NOT EXISTS (SELECT 1 FROM bookings b WHERE b.group_id = g.id AND b.status = ANY($2))`,
		id, statusStrings(domain.OccupyingStatuses))
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

var _ GroupRepository = (*PGGroupRepository)(nil)
