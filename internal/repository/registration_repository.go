package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/guestpass-service/internal/domain"
)

// RegistrationFilter captures listing and search predicates. Nil fields are ignored.
type RegistrationFilter struct {
	OwnerID        *string
	SearchTerm     *string
	IsActive       *bool
	AutoReregister *bool
	ExpiresFrom    *time.Time
	ExpiresTo      *time.Time
	SortByExpiry   bool
	Limit          int
}

// RegistrationFlagsDelta lists the user-controlled flags to change.
type RegistrationFlagsDelta struct {
	IsActive       *bool
	AutoReregister *bool
}

// RegistrationStats summarises the table for admins.
type RegistrationStats struct {
	Total            int64 `json:"total_registrations"`
	Active           int64 `json:"active_registrations"`
	AutoReregister   int64 `json:"auto_reregister_enabled"`
	TotalSubmissions int64 `json:"total_submissions"`
}

// RegistrationRepository encapsulates registration persistence.
type RegistrationRepository interface {
	Create(ctx context.Context, reg *domain.Registration) error
	GetByID(ctx context.Context, id string) (*domain.Registration, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Registration, error)
	Search(ctx context.Context, filter RegistrationFilter) ([]domain.Registration, error)
	ListWhere(ctx context.Context, filter RegistrationFilter) ([]domain.Registration, error)
	UpdateFlags(ctx context.Context, id string, delta RegistrationFlagsDelta) (*domain.Registration, error)
	RecordSubmission(ctx context.Context, id string, submittedAt, expiresAt time.Time) (*domain.Registration, error)
	Stats(ctx context.Context) (RegistrationStats, error)
}

const registrationColumns = `id, owner_id, first_name, last_name, license_plate, license_plate_state,
               car_year, car_make, car_model, car_color, resident_visiting, apartment_visiting,
               phone_number, email, created_at, last_submitted_at, expires_at, submission_count,
               auto_reregister, is_active`

type registrationRepository struct {
	pool *pgxpool.Pool
}

// NewRegistrationRepository instantiates the postgres repository.
func NewRegistrationRepository(pool *pgxpool.Pool) RegistrationRepository {
	return &registrationRepository{pool: pool}
}

func (r *registrationRepository) Create(ctx context.Context, reg *domain.Registration) error {
	const query = `
        INSERT INTO registrations (owner_id, first_name, last_name, license_plate, license_plate_state,
            car_year, car_make, car_model, car_color, resident_visiting, apartment_visiting, phone_number,
            email, auto_reregister, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        RETURNING id, created_at, submission_count`
	err := r.pool.QueryRow(ctx, query,
		reg.OwnerID,
		reg.FirstName,
		reg.LastName,
		reg.LicensePlate,
		reg.LicensePlateState,
		reg.CarYear,
		reg.CarMake,
		reg.CarModel,
		reg.CarColor,
		reg.ResidentVisiting,
		reg.ApartmentVisiting,
		reg.PhoneNumber,
		reg.Email,
		reg.AutoReregister,
		reg.IsActive,
	).Scan(&reg.ID, &reg.CreatedAt, &reg.SubmissionCount)
	return classify(err)
}

func (r *registrationRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *registrationRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Registration, error) {
	return r.ListWhere(ctx, RegistrationFilter{OwnerID: &ownerID})
}

func (r *registrationRepository) Search(ctx context.Context, filter RegistrationFilter) ([]domain.Registration, error) {
	if filter.SearchTerm == nil || strings.TrimSpace(*filter.SearchTerm) == "" {
		return []domain.Registration{}, nil
	}
	return r.ListWhere(ctx, filter)
}

func (r *registrationRepository) ListWhere(ctx context.Context, filter RegistrationFilter) ([]domain.Registration, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id=$%d", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		clauses = append(clauses, fmt.Sprintf("is_active=$%d", len(args)))
	}
	if filter.AutoReregister != nil {
		args = append(args, *filter.AutoReregister)
		clauses = append(clauses, fmt.Sprintf("auto_reregister=$%d", len(args)))
	}
	if filter.ExpiresFrom != nil || filter.ExpiresTo != nil {
		clauses = append(clauses, "expires_at IS NOT NULL")
	}
	if filter.ExpiresFrom != nil {
		args = append(args, *filter.ExpiresFrom)
		clauses = append(clauses, fmt.Sprintf("expires_at >= $%d", len(args)))
	}
	if filter.ExpiresTo != nil {
		args = append(args, *filter.ExpiresTo)
		clauses = append(clauses, fmt.Sprintf("expires_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		args = append(args, likePattern(*filter.SearchTerm))
		p := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(LOWER(first_name) LIKE %s ESCAPE '\\' OR LOWER(last_name) LIKE %s ESCAPE '\\' OR LOWER(car_model) LIKE %s ESCAPE '\\' OR LOWER(license_plate) LIKE %s ESCAPE '\\')",
			p, p, p, p))
	}

	order := "created_at DESC, id ASC"
	if filter.SortByExpiry {
		order = "expires_at ASC, id ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM registrations WHERE %s ORDER BY %s`,
		registrationColumns, strings.Join(clauses, " AND "), order)
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	regs, err := scanRegistrations(rows)
	return regs, classify(err)
}

func (r *registrationRepository) UpdateFlags(ctx context.Context, id string, delta RegistrationFlagsDelta) (*domain.Registration, error) {
	sets := []string{}
	args := []any{}
	if delta.IsActive != nil {
		args = append(args, *delta.IsActive)
		sets = append(sets, fmt.Sprintf("is_active=$%d", len(args)))
	}
	if delta.AutoReregister != nil {
		args = append(args, *delta.AutoReregister)
		sets = append(sets, fmt.Sprintf("auto_reregister=$%d", len(args)))
	}
	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE registrations SET %s WHERE id=$%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), registrationColumns)
	return r.fetchSingle(ctx, query, args...)
}

// RecordSubmission stamps a successful submission and bumps the counter in one statement.
func (r *registrationRepository) RecordSubmission(ctx context.Context, id string, submittedAt, expiresAt time.Time) (*domain.Registration, error) {
	query := `
        UPDATE registrations
        SET last_submitted_at=$1, expires_at=$2, submission_count=submission_count + 1
        WHERE id=$3
        RETURNING ` + registrationColumns
	return r.fetchSingle(ctx, query, submittedAt, expiresAt, id)
}

func (r *registrationRepository) Stats(ctx context.Context) (RegistrationStats, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE is_active),
               COUNT(*) FILTER (WHERE auto_reregister),
               COALESCE(SUM(submission_count), 0)
        FROM registrations`
	var stats RegistrationStats
	err := r.pool.QueryRow(ctx, query).Scan(&stats.Total, &stats.Active, &stats.AutoReregister, &stats.TotalSubmissions)
	return stats, classify(err)
}

func (r *registrationRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Registration, error) {
	reg, err := scanRegistration(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, classify(err)
	}
	return reg, nil
}

func scanRegistration(row pgx.Row) (*domain.Registration, error) {
	var reg domain.Registration
	if err := row.Scan(
		&reg.ID,
		&reg.OwnerID,
		&reg.FirstName,
		&reg.LastName,
		&reg.LicensePlate,
		&reg.LicensePlateState,
		&reg.CarYear,
		&reg.CarMake,
		&reg.CarModel,
		&reg.CarColor,
		&reg.ResidentVisiting,
		&reg.ApartmentVisiting,
		&reg.PhoneNumber,
		&reg.Email,
		&reg.CreatedAt,
		&reg.LastSubmittedAt,
		&reg.ExpiresAt,
		&reg.SubmissionCount,
		&reg.AutoReregister,
		&reg.IsActive,
	); err != nil {
		return nil, err
	}
	return &reg, nil
}

func scanRegistrations(rows pgx.Rows) ([]domain.Registration, error) {
	result := []domain.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *reg)
	}
	return result, rows.Err()
}

func likePattern(term string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(strings.TrimSpace(term)))
	return "%" + escaped + "%"
}
