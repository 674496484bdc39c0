package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	apperrors "github.com/spec-kit/guestpass-service/pkg/util/errorutil"
)

type MemoryRegistrationStoreSuite struct {
	registrationStoreCases
	memory *InMemoryRegistrationRepository
}

func TestMemoryRegistrationStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryRegistrationStoreSuite))
}

func (s *MemoryRegistrationStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.reset = func() {
		s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		s.memory = NewInMemoryRegistrationRepository(func() time.Time { return s.now })
		s.store = s.memory
	}
	s.reset()
}

func (s *MemoryRegistrationStoreSuite) TestUnavailable() {
	s.memory.SetUnavailable(errors.New("connection refused"))

	_, err := s.store.GetByID(s.ctx, "any")
	s.True(apperrors.HasCode(err, apperrors.CodeStoreUnavailable))

	s.memory.SetUnavailable(nil)
	_, err = s.store.GetByID(s.ctx, "any")
	s.True(apperrors.HasCode(err, apperrors.CodeNotFound))
}
