package facility

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/referhub/referhub/internal/platform/apperr"
	"github.com/referhub/referhub/internal/platform/db"
)

// =========== Hospital Repository ===========

type hospitalRepoPG struct{ pool *pgxpool.Pool }

func NewHospitalRepoPG(pool *pgxpool.Pool) HospitalRepository {
	return &hospitalRepoPG{pool: pool}
}

const hospitalCols = `id, name, email, location, phone, created_at`

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	err := row.Scan(&h.ID, &h.Name, &h.Email, &h.Location, &h.Phone, &h.CreatedAt)
	return &h, err
}

func (r *hospitalRepoPG) Create(ctx context.Context, h *Hospital) error {
	h.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO hospitals (id, name, email, location, phone)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		h.ID, h.Name, h.Email, h.Location, h.Phone).Scan(&h.CreatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Validation("a hospital with email %s already exists", h.Email)
	}
	if err != nil {
		return apperr.Persistence("create hospital", err)
	}
	return nil
}

func (r *hospitalRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	h, err := scanHospital(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+hospitalCols+` FROM hospitals WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("hospital", id.String())
	}
	if err != nil {
		return nil, apperr.Persistence("get hospital", err)
	}
	return h, nil
}

func (r *hospitalRepoPG) List(ctx context.Context, limit, offset int) ([]*Hospital, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM hospitals`).Scan(&total); err != nil {
		return nil, 0, apperr.Persistence("count hospitals", err)
	}
	rows, err := q.Query(ctx, `SELECT `+hospitalCols+` FROM hospitals ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("list hospitals", err)
	}
	defer rows.Close()
	var items []*Hospital
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, 0, apperr.Persistence("list hospitals", err)
		}
		items = append(items, h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Persistence("list hospitals", err)
	}
	return items, total, nil
}

// =========== Clinic Repository ===========

type clinicRepoPG struct{ pool *pgxpool.Pool }

func NewClinicRepoPG(pool *pgxpool.Pool) ClinicRepository {
	return &clinicRepoPG{pool: pool}
}

const clinicCols = `id, name, email, location, created_at`

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Location, &c.CreatedAt)
	return &c, err
}

func (r *clinicRepoPG) Create(ctx context.Context, c *Clinic) error {
	c.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO clinics (id, name, email, location)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at`,
		c.ID, c.Name, c.Email, c.Location).Scan(&c.CreatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Validation("a clinic with email %s already exists", c.Email)
	}
	if err != nil {
		return apperr.Persistence("create clinic", err)
	}
	return nil
}

func (r *clinicRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	c, err := scanClinic(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+clinicCols+` FROM clinics WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("clinic", id.String())
	}
	if err != nil {
		return nil, apperr.Persistence("get clinic", err)
	}
	return c, nil
}

func (r *clinicRepoPG) List(ctx context.Context, limit, offset int) ([]*Clinic, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM clinics`).Scan(&total); err != nil {
		return nil, 0, apperr.Persistence("count clinics", err)
	}
	rows, err := q.Query(ctx, `SELECT `+clinicCols+` FROM clinics ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("list clinics", err)
	}
	defer rows.Close()
	var items []*Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, 0, apperr.Persistence("list clinics", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Persistence("list clinics", err)
	}
	return items, total, nil
}
