package referral

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/referhub/referhub/internal/platform/apperr"
	"github.com/referhub/referhub/internal/platform/db"
)

type referralRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &referralRepoPG{pool: pool}
}

const referralCols = `r.id, r.clinic_id, r.hospital_id, r.unit_id, r.patient_id, r.reason, r.urgency,
	r.additional_note, r.status, r.created_at, r.updated_at,
	p.id, p.fullname, p.age, p.gender, p.phone, p.nhis_number, p.vitals, p.created_at`

func scanReferral(row pgx.Row) (*Referral, error) {
	var r Referral
	var p Patient
	var vitals []byte
	err := row.Scan(&r.ID, &r.ClinicID, &r.HospitalID, &r.UnitID, &r.PatientID, &r.Reason, &r.Urgency,
		&r.AdditionalNote, &r.Status, &r.CreatedAt, &r.UpdatedAt,
		&p.ID, &p.Fullname, &p.Age, &p.Gender, &p.Phone, &p.NHISNumber, &vitals, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(vitals) > 0 {
		if err := json.Unmarshal(vitals, &p.Vitals); err != nil {
			return nil, fmt.Errorf("decode vitals: %w", err)
		}
	}
	r.Patient = &p
	return &r, nil
}

func (repo *referralRepoPG) Create(ctx context.Context, r *Referral) error {
	if r.Patient == nil {
		return apperr.Internal(fmt.Errorf("referral without patient"))
	}
	vitals, err := json.Marshal(r.Patient.Vitals)
	if err != nil {
		return apperr.Internal(fmt.Errorf("encode vitals: %w", err))
	}

	r.ID = uuid.New()
	r.Patient.ID = uuid.New()
	r.PatientID = r.Patient.ID

	err = db.WithTx(ctx, repo.pool, func(ctx context.Context) error {
		q := db.Conn(ctx, repo.pool)
		p := r.Patient
		if err := q.QueryRow(ctx, `
			INSERT INTO patients (id, fullname, age, gender, phone, nhis_number, vitals)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING created_at`,
			p.ID, p.Fullname, p.Age, p.Gender, p.Phone, p.NHISNumber, vitals).Scan(&p.CreatedAt); err != nil {
			return err
		}
		return q.QueryRow(ctx, `
			INSERT INTO referrals (id, clinic_id, hospital_id, unit_id, patient_id, reason, urgency, additional_note, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING created_at, updated_at`,
			r.ID, r.ClinicID, r.HospitalID, r.UnitID, r.PatientID, r.Reason, r.Urgency, r.AdditionalNote, r.Status,
		).Scan(&r.CreatedAt, &r.UpdatedAt)
	})
	if err != nil {
		return apperr.Persistence("create referral", err)
	}
	return nil
}

func (repo *referralRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	r, err := scanReferral(db.Conn(ctx, repo.pool).QueryRow(ctx, `
		SELECT `+referralCols+`
		FROM referrals r JOIN patients p ON p.id = r.patient_id
		WHERE r.id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("referral", id.String())
	}
	if err != nil {
		return nil, apperr.Persistence("get referral", err)
	}
	return r, nil
}

func (f Filter) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(col string, v *uuid.UUID) {
		if v == nil {
			return
		}
		args = append(args, *v)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("r.clinic_id", f.ClinicID)
	add("r.hospital_id", f.HospitalID)
	add("r.unit_id", f.UnitID)
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (repo *referralRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Referral, int, error) {
	q := db.Conn(ctx, repo.pool)
	where, args := f.where()

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM referrals r`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Persistence("count referrals", err)
	}

	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT `+referralCols+`
		FROM referrals r JOIN patients p ON p.id = r.patient_id`+where+`
		ORDER BY r.created_at DESC
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, apperr.Persistence("list referrals", err)
	}
	defer rows.Close()

	var items []*Referral
	for rows.Next() {
		r, err := scanReferral(rows)
		if err != nil {
			return nil, 0, apperr.Persistence("list referrals", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Persistence("list referrals", err)
	}
	return items, total, nil
}

func (repo *referralRepoPG) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status) (*Referral, bool, error) {
	r, err := scanReferral(db.Conn(ctx, repo.pool).QueryRow(ctx, `
		WITH r AS (
			UPDATE referrals SET status = $3, updated_at = NOW()
			WHERE id = $1 AND status = $2
			RETURNING *
		)
		SELECT `+referralCols+`
		FROM r JOIN patients p ON p.id = r.patient_id`, id, expected, next))
	if db.IsNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Persistence("update referral status", err)
	}
	return r, true, nil
}

func (repo *referralRepoPG) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := db.Conn(ctx, repo.pool).Query(ctx, `SELECT status, COUNT(*) FROM referrals GROUP BY status`)
	if err != nil {
		return nil, apperr.Persistence("count referrals by status", err)
	}
	defer rows.Close()

	counts := map[Status]int{StatusPending: 0, StatusAccepted: 0, StatusDeclined: 0}
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, apperr.Persistence("count referrals by status", err)
		}
		counts[s] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("count referrals by status", err)
	}
	return counts, nil
}
