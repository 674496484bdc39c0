package repository

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"
	"pgregory.net/rapid"

	"github.com/spec-kit/guestpass-service/internal/domain"
	apperrors "github.com/spec-kit/guestpass-service/pkg/util/errorutil"
)

// registrationStoreCases holds the behaviour every RegistrationRepository must share.
// Concrete suites set store and reset in SetupTest.
type registrationStoreCases struct {
	suite.Suite
	store RegistrationRepository
	reset func()
	ctx   context.Context
	now   time.Time
}

func (s *registrationStoreCases) create(owner, first, model, plate string) *domain.Registration {
	reg := &domain.Registration{
		OwnerID: owner,
		RegistrationFields: domain.RegistrationFields{
			FirstName:         first,
			LastName:          "Guest",
			LicensePlate:      plate,
			LicensePlateState: "TX",
			CarYear:           "2020",
			CarMake:           "Toyota",
			CarModel:          model,
			CarColor:          "Red",
			ResidentVisiting:  "Resident",
			ApartmentVisiting: "215",
			Email:             "guest@example.com",
		},
	}
	s.Require().NoError(s.store.Create(s.ctx, reg))
	s.now = s.now.Add(time.Minute)
	return reg
}

func (s *registrationStoreCases) TestCreateAndGet() {
	reg := s.create("owner-1", "Ana", "Corolla", "ABC123")

	s.NotEmpty(reg.ID)
	s.Zero(reg.SubmissionCount)
	s.Nil(reg.ExpiresAt)

	found, err := s.store.GetByID(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal("Ana", found.FirstName)
	s.Equal("owner-1", found.OwnerID)
	s.Nil(found.PhoneNumber)
	s.Nil(found.LastSubmittedAt)

	_, err = s.store.GetByID(s.ctx, "missing")
	s.True(apperrors.HasCode(err, apperrors.CodeNotFound))
	_, err = s.store.GetByID(s.ctx, "5b0f7a7e-0000-4000-8000-000000000000")
	s.True(apperrors.HasCode(err, apperrors.CodeNotFound))
}

func (s *registrationStoreCases) TestListByOwnerNewestFirst() {
	first := s.create("owner-1", "Ana", "Corolla", "ABC123")
	s.create("owner-2", "Bo", "Civic", "XYZ999")
	second := s.create("owner-1", "Cy", "Camry", "JKL456")

	regs, err := s.store.ListByOwner(s.ctx, "owner-1")
	s.Require().NoError(err)
	s.Require().Len(regs, 2)
	s.Equal(second.ID, regs[0].ID)
	s.Equal(first.ID, regs[1].ID)
}

func (s *registrationStoreCases) TestSearchMatchesAnyFieldCaseInsensitive() {
	s.create("owner-1", "Ana", "Corolla", "ABC123")
	s.create("owner-1", "Bo", "Civic", "XYZ999")
	s.create("owner-2", "Cora", "Accord", "QRS111")

	term := "cor"
	all, err := s.store.Search(s.ctx, RegistrationFilter{SearchTerm: &term})
	s.Require().NoError(err)
	s.Len(all, 2)

	owner := "owner-1"
	mine, err := s.store.Search(s.ctx, RegistrationFilter{SearchTerm: &term, OwnerID: &owner})
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal("Corolla", mine[0].CarModel)

	plate := "xyz"
	byPlate, err := s.store.Search(s.ctx, RegistrationFilter{SearchTerm: &plate})
	s.Require().NoError(err)
	s.Require().Len(byPlate, 1)
	s.Equal("Bo", byPlate[0].FirstName)

	empty := "  "
	none, err := s.store.Search(s.ctx, RegistrationFilter{SearchTerm: &empty})
	s.Require().NoError(err)
	s.NotNil(none)
	s.Empty(none)
}

func (s *registrationStoreCases) TestSearchTreatsWildcardsLiterally() {
	s.create("owner-1", "Ana", "Corolla", "ABC123")
	s.create("owner-1", "Bo_b", "Civic", "XYZ999")

	for _, term := range []string{"%", "a%a"} {
		regs, err := s.store.Search(s.ctx, RegistrationFilter{SearchTerm: &term})
		s.Require().NoError(err)
		s.Empty(regs, "term %q", term)
	}

	underscore := "o_b"
	regs, err := s.store.Search(s.ctx, RegistrationFilter{SearchTerm: &underscore})
	s.Require().NoError(err)
	s.Require().Len(regs, 1)
	s.Equal("Bo_b", regs[0].FirstName)
}

func (s *registrationStoreCases) TestRecordSubmissionIncrementsCounter() {
	reg := s.create("owner-1", "Ana", "Corolla", "ABC123")
	at := s.now
	exp := domain.ExpiryFor(at)

	updated, err := s.store.RecordSubmission(s.ctx, reg.ID, at, exp)
	s.Require().NoError(err)
	s.Equal(1, updated.SubmissionCount)
	s.WithinDuration(exp, *updated.ExpiresAt, 0)
	s.WithinDuration(at, *updated.LastSubmittedAt, 0)

	updated, err = s.store.RecordSubmission(s.ctx, reg.ID, at.Add(time.Hour), exp.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(2, updated.SubmissionCount)

	_, err = s.store.RecordSubmission(s.ctx, "missing", at, exp)
	s.True(apperrors.HasCode(err, apperrors.CodeNotFound))
}

func (s *registrationStoreCases) TestConcurrentSubmissionsEachCount() {
	reg := s.create("owner-1", "Ana", "Corolla", "ABC123")
	const writers = 12

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at := s.now.Add(time.Duration(i) * time.Second)
			_, err := s.store.RecordSubmission(s.ctx, reg.ID, at, domain.ExpiryFor(at))
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	got, err := s.store.GetByID(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(writers, got.SubmissionCount)
	s.WithinDuration(got.LastSubmittedAt.Add(domain.ValidityWindow), *got.ExpiresAt, 0)
}

func (s *registrationStoreCases) TestListWhereExpiryRangeSkipsNeverSubmitted() {
	submitted := s.create("owner-1", "Ana", "Corolla", "ABC123")
	s.create("owner-1", "Bo", "Civic", "XYZ999")
	_, err := s.store.RecordSubmission(s.ctx, submitted.ID, s.now, domain.ExpiryFor(s.now))
	s.Require().NoError(err)

	from := s.now
	to := s.now.Add(48 * time.Hour)
	regs, err := s.store.ListWhere(s.ctx, RegistrationFilter{ExpiresFrom: &from, ExpiresTo: &to, SortByExpiry: true})
	s.Require().NoError(err)
	s.Require().Len(regs, 1)
	s.Equal(submitted.ID, regs[0].ID)
}

func (s *registrationStoreCases) TestExpiryRangeIsClosedAndSortedByExpiry() {
	late := s.create("owner-1", "Ana", "Corolla", "ABC123")
	early := s.create("owner-1", "Bo", "Civic", "XYZ999")
	outside := s.create("owner-1", "Cy", "Camry", "JKL456")
	base := s.now
	for reg, at := range map[string]time.Time{
		late.ID:    base.Add(2 * time.Hour),
		early.ID:   base,
		outside.ID: base.Add(3 * time.Hour),
	} {
		_, err := s.store.RecordSubmission(s.ctx, reg, at, domain.ExpiryFor(at))
		s.Require().NoError(err)
	}

	from := domain.ExpiryFor(base)
	to := from.Add(2 * time.Hour)
	active := false
	regs, err := s.store.ListWhere(s.ctx, RegistrationFilter{ExpiresFrom: &from, ExpiresTo: &to, IsActive: &active, SortByExpiry: true})
	s.Require().NoError(err)
	s.Require().Len(regs, 2)
	s.Equal(early.ID, regs[0].ID)
	s.Equal(late.ID, regs[1].ID)
}

// Whatever the window, an expiry query never returns a row without an expiry and
// never a row outside the window.
func (s *registrationStoreCases) TestExpiryQueriesNeverReturnUnsubmittedRows() {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rapid.Check(s.T(), func(t *rapid.T) {
		s.reset()
		n := rapid.IntRange(1, 6).Draw(t, "rows")
		for i := 0; i < n; i++ {
			reg := s.create("owner-1", "Ana", "Corolla", "ABC123")
			if rapid.Bool().Draw(t, "submitted") {
				at := base.Add(time.Duration(rapid.IntRange(0, 72).Draw(t, "submittedHour")) * time.Hour)
				if _, err := s.store.RecordSubmission(s.ctx, reg.ID, at, domain.ExpiryFor(at)); err != nil {
					t.Fatalf("record submission: %v", err)
				}
			}
		}
		from := base.Add(time.Duration(rapid.IntRange(0, 96).Draw(t, "fromHour")) * time.Hour)
		to := from.Add(time.Duration(rapid.IntRange(0, 48).Draw(t, "windowHours")) * time.Hour)

		regs, err := s.store.ListWhere(s.ctx, RegistrationFilter{ExpiresFrom: &from, ExpiresTo: &to, SortByExpiry: true})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, reg := range regs {
			if reg.ExpiresAt == nil {
				t.Fatalf("registration %s returned without expiry", reg.ID)
			}
			if reg.ExpiresAt.Before(from) || reg.ExpiresAt.After(to) {
				t.Fatalf("expiry %s outside [%s, %s]", reg.ExpiresAt, from, to)
			}
		}
	})
}

func (s *registrationStoreCases) TestUpdateFlagsAndStats() {
	reg := s.create("owner-1", "Ana", "Corolla", "ABC123")
	s.create("owner-2", "Bo", "Civic", "XYZ999")
	active := true

	updated, err := s.store.UpdateFlags(s.ctx, reg.ID, RegistrationFlagsDelta{IsActive: &active})
	s.Require().NoError(err)
	s.True(updated.IsActive)
	s.False(updated.AutoReregister)

	unchanged, err := s.store.UpdateFlags(s.ctx, reg.ID, RegistrationFlagsDelta{})
	s.Require().NoError(err)
	s.True(unchanged.IsActive)

	_, err = s.store.RecordSubmission(s.ctx, reg.ID, s.now, domain.ExpiryFor(s.now))
	s.Require().NoError(err)

	stats, err := s.store.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(RegistrationStats{Total: 2, Active: 1, AutoReregister: 0, TotalSubmissions: 1}, stats)

	_, err = s.store.UpdateFlags(s.ctx, "missing", RegistrationFlagsDelta{IsActive: &active})
	s.True(apperrors.HasCode(err, apperrors.CodeNotFound))
}
