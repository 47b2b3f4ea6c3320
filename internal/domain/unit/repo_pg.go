package unit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/referhub/referhub/internal/platform/apperr"
	"github.com/referhub/referhub/internal/platform/db"
)

type unitRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &unitRepoPG{pool: pool}
}

const unitCols = `id, hospital_id, name, email, is_online, accepting_referrals, available_beds, last_updated, created_at`

func scanUnit(row pgx.Row) (*Unit, error) {
	var u Unit
	err := row.Scan(&u.ID, &u.HospitalID, &u.Name, &u.Email,
		&u.IsOnline, &u.AcceptingReferrals, &u.AvailableBeds, &u.LastUpdated, &u.CreatedAt)
	return &u, err
}

func (r *unitRepoPG) Create(ctx context.Context, u *Unit) error {
	u.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO units (id, hospital_id, name, email, available_beds, is_online, accepting_referrals)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING last_updated, created_at`,
		u.ID, u.HospitalID, u.Name, u.Email, u.AvailableBeds, u.IsOnline, u.AcceptingReferrals,
	).Scan(&u.LastUpdated, &u.CreatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Validation("a unit with email %s already exists", u.Email)
	}
	if err != nil {
		return apperr.Persistence("create unit", err)
	}
	return nil
}

func (r *unitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Unit, error) {
	u, err := scanUnit(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+unitCols+` FROM units WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("unit", id.String())
	}
	if err != nil {
		return nil, apperr.Persistence("get unit", err)
	}
	return u, nil
}

func (r *unitRepoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Unit, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM units`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Persistence("count units", err)
	}

	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT `+unitCols+` FROM units`+where+`
		ORDER BY name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, apperr.Persistence("list units", err)
	}
	defer rows.Close()
	var items []*Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, 0, apperr.Persistence("list units", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Persistence("list units", err)
	}
	return items, total, nil
}

func (r *unitRepoPG) List(ctx context.Context, limit, offset int) ([]*Unit, int, error) {
	return r.list(ctx, "", nil, limit, offset)
}

func (r *unitRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Unit, int, error) {
	return r.list(ctx, " WHERE hospital_id = $1", []interface{}{hospitalID}, limit, offset)
}

func (r *unitRepoPG) UpdatePresence(ctx context.Context, id uuid.UUID, p Presence) (*Unit, error) {
	// last_updated strictly increases even when NOW() has not moved.
	u, err := scanUnit(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE units
		SET is_online = $2, accepting_referrals = $3, available_beds = $4,
		    last_updated = GREATEST(NOW(), last_updated + INTERVAL '1 microsecond')
		WHERE id = $1
		RETURNING `+unitCols,
		id, p.IsOnline, p.AcceptingReferrals, p.AvailableBeds))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("unit", id.String())
	}
	if err != nil {
		return nil, apperr.Persistence("update unit status", err)
	}
	return u, nil
}

func (r *unitRepoPG) Count(ctx context.Context) (int, int, error) {
	var total, online int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_online) FROM units`).Scan(&total, &online)
	if err != nil {
		return 0, 0, apperr.Persistence("count units", err)
	}
	return total, online, nil
}
