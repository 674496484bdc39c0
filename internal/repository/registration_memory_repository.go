package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/guestpass-service/internal/domain"
	apperrors "github.com/spec-kit/guestpass-service/pkg/util/errorutil"
)

var _ RegistrationRepository = (*InMemoryRegistrationRepository)(nil)

// InMemoryRegistrationRepository keeps registrations in a map. Used in development
// when no POSTGRES_DSN is configured, and in tests.
type InMemoryRegistrationRepository struct {
	mu    sync.RWMutex
	rows  map[string]domain.Registration
	now   func() time.Time
	avail error
}

// NewInMemoryRegistrationRepository builds an empty store stamping rows with now.
func NewInMemoryRegistrationRepository(now func() time.Time) *InMemoryRegistrationRepository {
	if now == nil {
		now = time.Now
	}
	return &InMemoryRegistrationRepository{rows: map[string]domain.Registration{}, now: now}
}

// SetUnavailable makes every call fail with STORE_UNAVAILABLE wrapping err. Pass nil to recover.
func (r *InMemoryRegistrationRepository) SetUnavailable(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.avail = err
}

func (r *InMemoryRegistrationRepository) unavailable() error {
	if r.avail != nil {
		return apperrors.NewStoreUnavailable(r.avail)
	}
	return nil
}

func (r *InMemoryRegistrationRepository) Create(ctx context.Context, reg *domain.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.unavailable(); err != nil {
		return err
	}
	reg.ID = uuid.NewString()
	reg.CreatedAt = r.now()
	reg.SubmissionCount = 0
	reg.LastSubmittedAt = nil
	reg.ExpiresAt = nil
	r.rows[reg.ID] = cloneRegistration(*reg)
	return nil
}

func (r *InMemoryRegistrationRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.unavailable(); err != nil {
		return nil, err
	}
	reg, ok := r.rows[id]
	if !ok {
		return nil, apperrors.NewNotFound("registration", nil)
	}
	out := cloneRegistration(reg)
	return &out, nil
}

func (r *InMemoryRegistrationRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Registration, error) {
	return r.ListWhere(ctx, RegistrationFilter{OwnerID: &ownerID})
}

func (r *InMemoryRegistrationRepository) Search(ctx context.Context, filter RegistrationFilter) ([]domain.Registration, error) {
	if filter.SearchTerm == nil || strings.TrimSpace(*filter.SearchTerm) == "" {
		return []domain.Registration{}, nil
	}
	return r.ListWhere(ctx, filter)
}

func (r *InMemoryRegistrationRepository) ListWhere(ctx context.Context, filter RegistrationFilter) ([]domain.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.unavailable(); err != nil {
		return nil, err
	}
	result := []domain.Registration{}
	for _, reg := range r.rows {
		if matches(reg, filter) {
			result = append(result, cloneRegistration(reg))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if filter.SortByExpiry && a.ExpiresAt != nil && b.ExpiresAt != nil {
			if !a.ExpiresAt.Equal(*b.ExpiresAt) {
				return a.ExpiresAt.Before(*b.ExpiresAt)
			}
			return a.ID < b.ID
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *InMemoryRegistrationRepository) UpdateFlags(ctx context.Context, id string, delta RegistrationFlagsDelta) (*domain.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.unavailable(); err != nil {
		return nil, err
	}
	reg, ok := r.rows[id]
	if !ok {
		return nil, apperrors.NewNotFound("registration", nil)
	}
	if delta.IsActive != nil {
		reg.IsActive = *delta.IsActive
	}
	if delta.AutoReregister != nil {
		reg.AutoReregister = *delta.AutoReregister
	}
	r.rows[id] = reg
	out := cloneRegistration(reg)
	return &out, nil
}

func (r *InMemoryRegistrationRepository) RecordSubmission(ctx context.Context, id string, submittedAt, expiresAt time.Time) (*domain.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.unavailable(); err != nil {
		return nil, err
	}
	reg, ok := r.rows[id]
	if !ok {
		return nil, apperrors.NewNotFound("registration", nil)
	}
	reg.LastSubmittedAt = &submittedAt
	reg.ExpiresAt = &expiresAt
	reg.SubmissionCount++
	r.rows[id] = reg
	out := cloneRegistration(reg)
	return &out, nil
}

func (r *InMemoryRegistrationRepository) Stats(ctx context.Context) (RegistrationStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.unavailable(); err != nil {
		return RegistrationStats{}, err
	}
	var stats RegistrationStats
	for _, reg := range r.rows {
		stats.Total++
		if reg.IsActive {
			stats.Active++
		}
		if reg.AutoReregister {
			stats.AutoReregister++
		}
		stats.TotalSubmissions += int64(reg.SubmissionCount)
	}
	return stats, nil
}

func matches(reg domain.Registration, filter RegistrationFilter) bool {
	if filter.OwnerID != nil && reg.OwnerID != *filter.OwnerID {
		return false
	}
	if filter.IsActive != nil && reg.IsActive != *filter.IsActive {
		return false
	}
	if filter.AutoReregister != nil && reg.AutoReregister != *filter.AutoReregister {
		return false
	}
	if filter.ExpiresFrom != nil || filter.ExpiresTo != nil {
		if reg.ExpiresAt == nil {
			return false
		}
		if filter.ExpiresFrom != nil && reg.ExpiresAt.Before(*filter.ExpiresFrom) {
			return false
		}
		if filter.ExpiresTo != nil && reg.ExpiresAt.After(*filter.ExpiresTo) {
			return false
		}
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term != "" {
			found := false
			for _, field := range []string{reg.FirstName, reg.LastName, reg.CarModel, reg.LicensePlate} {
				if strings.Contains(strings.ToLower(field), term) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func cloneRegistration(reg domain.Registration) domain.Registration {
	if reg.PhoneNumber != nil {
		phone := *reg.PhoneNumber
		reg.PhoneNumber = &phone
	}
	if reg.LastSubmittedAt != nil {
		at := *reg.LastSubmittedAt
		reg.LastSubmittedAt = &at
	}
	if reg.ExpiresAt != nil {
		at := *reg.ExpiresAt
		reg.ExpiresAt = &at
	}
	return reg
}
