package repository

import (
	"context"

	"github.com/Domenick1991/deskbooking/internal/domain"
)

type TableRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Table, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.Table, error)
	// LockForUpdate takes a row lock on the table for the rest of the surrounding transaction.
	LockForUpdate(ctx context.Context, id string) (*domain.Table, error)
}

type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	LockForUpdate(ctx context.Context, id string) (*domain.Account, error)
	ListAdmins(ctx context.Context) ([]domain.Account, error)
}

type PGTableRepository struct {
	db DB
}

func NewTableRepository(db DB) TableRepository {
	return &PGTableRepository{db: db}
}

func (r *PGTableRepository) GetByID(ctx context.Context, id string) (*domain.Table, error) {
	return r.get(ctx, `SELECT id, room_id, title, unified FROM tables WHERE id=$1`, id)
}

func (r *PGTableRepository) LockForUpdate(ctx context.Context, id string) (*domain.Table, error) {
	return r.get(ctx, `SELECT id, room_id, title, unified FROM tables WHERE id=$1 FOR UPDATE`, id)
}

func (r *PGTableRepository) get(ctx context.Context, query, id string) (*domain.Table, error) {
	var t domain.Table
	if err := conn(ctx, r.db).QueryRow(ctx, query, id).Scan(&t.ID, &t.RoomID, &t.Title, &t.Unified); err != nil {
		return nil, notFound(err, "table "+id)
	}
	return &t, nil
}

func (r *PGTableRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Table, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT id, room_id, title, unified FROM tables WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make([]domain.Table, 0, len(ids))
	for rows.Next() {
		var t domain.Table
		if err := rows.Scan(&t.ID, &t.RoomID, &t.Title, &t.Unified); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

type PGAccountRepository struct {
	db DB
}

func NewAccountRepository(db DB) AccountRepository {
	return &PGAccountRepository{db: db}
}

func (r *PGAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.get(ctx, `SELECT id, email, phone, locale, is_admin FROM accounts WHERE id=$1`, id)
}

func (r *PGAccountRepository) LockForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	return r.get(ctx, `SELECT id, email, phone, locale, is_admin FROM accounts WHERE id=$1 FOR UPDATE`, id)
}

func (r *PGAccountRepository) get(ctx context.Context, query, id string) (*domain.Account, error) {
	var a domain.Account
	if err := conn(ctx, r.db).QueryRow(ctx, query, id).Scan(&a.ID, &a.Email, &a.Phone, &a.Locale, &a.IsAdmin); err != nil {
		return nil, notFound(err, "account "+id)
	}
	return &a, nil
}

func (r *PGAccountRepository) ListAdmins(ctx context.Context) ([]domain.Account, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT id, email, phone, locale, is_admin FROM accounts WHERE is_admin ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	admins := make([]domain.Account, 0)
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Email, &a.Phone, &a.Locale, &a.IsAdmin); err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, rows.Err()
}

var (
	_ TableRepository   = (*PGTableRepository)(nil)
	_ AccountRepository = (*PGAccountRepository)(nil)
)
