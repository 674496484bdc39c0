package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/guestpass-service/internal/api/http/handlers"
	"github.com/spec-kit/guestpass-service/internal/auth"
	"github.com/spec-kit/guestpass-service/internal/config"
	"github.com/spec-kit/guestpass-service/internal/domain"
	"github.com/spec-kit/guestpass-service/internal/executor"
	"github.com/spec-kit/guestpass-service/internal/observability"
	"github.com/spec-kit/guestpass-service/internal/repository"
	"github.com/spec-kit/guestpass-service/internal/service"
	"github.com/spec-kit/guestpass-service/internal/worker"
)

type switchExecutor struct {
	mu       sync.Mutex
	result   executor.Result
	onSubmit func()
}

func (e *switchExecutor) Submit(ctx context.Context, f domain.RegistrationFields) executor.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.onSubmit != nil {
		e.onSubmit()
	}
	return e.result
}

func (e *switchExecutor) set(res executor.Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.result = res
}

type stubJobs struct {
	ran []string
}

func (j *stubJobs) RunNow(ctx context.Context, name string) (worker.JobReport, error) {
	j.ran = append(j.ran, name)
	return worker.JobReport{Found: 2, Succeeded: 2}, nil
}

func (j *stubJobs) Status() []worker.JobStatus {
	return []worker.JobStatus{{Name: worker.JobAutoRenewal, Interval: "22h0m0s"}}
}

type APISuite struct {
	suite.Suite
	app   *fiber.App
	now   time.Time
	exec  *switchExecutor
	jobs  *stubJobs
	store *repository.InMemoryRegistrationRepository
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	s.now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	s.store = repository.NewInMemoryRegistrationRepository(clock)
	s.exec = &switchExecutor{result: executor.Succeeded("ok")}
	s.jobs = &stubJobs{}

	lifecycle := service.NewLifecycleService(config.LifecycleConfig{SubmissionTimeoutSeconds: 5}, service.LifecycleDependencies{
		RegistrationRepo: s.store,
		Executor:         s.exec,
		Clock:            clock,
	})
	hash, err := auth.HashClientKey("bot-key", bcrypt.MinCost)
	s.Require().NoError(err)
	tokens := auth.NewTokenManager("test-secret", 10)
	regs := handlers.NewRegistrationsHandler(lifecycle, 2*time.Hour)

	s.app = fiber.New()
	RegisterMiddlewares(s.app, zap.NewNop(), observability.NewMetrics(), 5*time.Second)
	RegisterRoutes(s.app, RouteConfig{
		Health:         handlers.NewHealthHandler("guestpass-service", "test", nil),
		Auth:           handlers.NewAuthHandler(auth.NewTokenIssuer(tokens, hash, []string{"admin-1"})),
		Registrations:  regs,
		Admin:          handlers.NewAdminHandler(regs, s.jobs),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        observability.NewMetrics().Handler(),
	})
}

func (s *APISuite) token(actorID string) string {
	status, body := s.do(nethttp.MethodPost, "/auth/token", "", map[string]string{"client_key": "bot-key", "actor_id": actorID})
	s.Require().Equal(nethttp.StatusOK, status, body)
	var out struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	s.Require().NoError(json.Unmarshal([]byte(body), &out))
	return out.Data.AccessToken
}

func (s *APISuite) do(method, path, token string, payload any) (int, string) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		s.Require().NoError(err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp.StatusCode, string(raw)
}

func registrationPayload(submitNow bool) map[string]any {
	return map[string]any{
		"first_name":          "ana",
		"last_name":           "guest",
		"license_plate":       "abc123",
		"license_plate_state": "tx",
		"car_year":            "2020",
		"car_make":            "Toyota",
		"car_model":           "Corolla",
		"car_color":           "Red",
		"resident_visiting":   "Jordan Lee",
		"apartment_visiting":  "215",
		"email":               "ana@example.com",
		"submit_now":          submitNow,
	}
}

type registrationEnvelope struct {
	Data struct {
		ID              string  `json:"id"`
		OwnerID         string  `json:"owner_id"`
		LicensePlate    string  `json:"license_plate"`
		SubmissionCount int     `json:"submission_count"`
		ExpiresAt       *string `json:"expires_at"`
		IsActive        bool    `json:"is_active"`
		AutoReregister  bool    `json:"auto_reregister"`
		Status          string  `json:"status"`
	} `json:"data"`
	Submission *struct {
		OK     bool   `json:"ok"`
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"submission"`
}

func (s *APISuite) decode(body string) registrationEnvelope {
	var env registrationEnvelope
	s.Require().NoError(json.Unmarshal([]byte(body), &env))
	return env
}

func (s *APISuite) TestRegistrationLifecycleOverHTTP() {
	owner := s.token("owner-1")

	status, body := s.do(nethttp.MethodPost, "/registrations", owner, registrationPayload(false))
	s.Require().Equal(nethttp.StatusCreated, status, body)
	created := s.decode(body)
	s.Equal("ABC123", created.Data.LicensePlate)
	s.Equal("NEVER_SUBMITTED", created.Data.Status)
	id := created.Data.ID

	status, body = s.do(nethttp.MethodPost, "/registrations/"+id+"/submit", owner, nil)
	s.Require().Equal(nethttp.StatusOK, status, body)
	submitted := s.decode(body)
	s.Equal(1, submitted.Data.SubmissionCount)
	s.Equal("LIVE", submitted.Data.Status)
	s.Require().NotNil(submitted.Data.ExpiresAt)
	s.Equal("2026-03-11T08:00:00Z", *submitted.Data.ExpiresAt)

	status, body = s.do(nethttp.MethodPut, "/registrations/"+id+"/active", owner, map[string]bool{"active": true})
	s.Require().Equal(nethttp.StatusOK, status, body)
	s.True(s.decode(body).Data.IsActive)

	status, body = s.do(nethttp.MethodPut, "/registrations/"+id+"/auto-reregister", owner, map[string]bool{"enabled": true})
	s.Require().Equal(nethttp.StatusOK, status, body)
	s.True(s.decode(body).Data.AutoReregister)

	status, _ = s.do(nethttp.MethodPut, "/registrations/"+id+"/active", owner, map[string]string{})
	s.Equal(nethttp.StatusBadRequest, status)

	s.now = s.now.Add(23 * time.Hour)
	status, body = s.do(nethttp.MethodGet, "/registrations/"+id, owner, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.Equal("EXPIRING", s.decode(body).Data.Status)

	status, body = s.do(nethttp.MethodGet, "/registrations", owner, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.Contains(body, id)
}

func (s *APISuite) TestSubmitFailureSurfacesDetail() {
	owner := s.token("owner-1")
	_, body := s.do(nethttp.MethodPost, "/registrations", owner, registrationPayload(false))
	id := s.decode(body).Data.ID

	s.exec.set(executor.Failed("portal rejected the plate"))
	status, body := s.do(nethttp.MethodPost, "/registrations/"+id+"/submit", owner, nil)
	s.Equal(nethttp.StatusBadGateway, status)
	s.Contains(body, "SUBMISSION_FAILED")
	s.Contains(body, "portal rejected the plate")

	status, body = s.do(nethttp.MethodPost, "/registrations", owner, registrationPayload(true))
	s.Require().Equal(nethttp.StatusCreated, status)
	env := s.decode(body)
	s.Require().NotNil(env.Submission)
	s.False(env.Submission.OK)
	s.Equal("SUBMISSION_FAILED", env.Submission.Code)
	s.Equal(0, env.Data.SubmissionCount)
}

func (s *APISuite) TestCreateWithSubmitNowReportsStoreErrorsInline() {
	owner := s.token("owner-1")
	s.exec.onSubmit = func() { s.store.SetUnavailable(errors.New("connection reset")) }

	status, body := s.do(nethttp.MethodPost, "/registrations", owner, registrationPayload(true))
	s.Require().Equal(nethttp.StatusCreated, status, body)
	env := s.decode(body)
	s.NotEmpty(env.Data.ID)
	s.Equal(0, env.Data.SubmissionCount)
	s.Require().NotNil(env.Submission)
	s.False(env.Submission.OK)
	s.Equal("STORE_UNAVAILABLE", env.Submission.Code)
	s.Equal("registration store unavailable", env.Submission.Detail)

	s.exec.onSubmit = nil
	s.store.SetUnavailable(nil)
	status, body = s.do(nethttp.MethodGet, "/registrations", owner, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.Equal(1, strings.Count(body, `"owner_id"`))
}

func (s *APISuite) TestCreateWithSubmitNow() {
	owner := s.token("owner-1")
	status, body := s.do(nethttp.MethodPost, "/registrations", owner, registrationPayload(true))
	s.Require().Equal(nethttp.StatusCreated, status, body)
	env := s.decode(body)
	s.Equal(1, env.Data.SubmissionCount)
	s.True(env.Submission.OK)
}

func (s *APISuite) TestValidationAndOwnership() {
	owner := s.token("owner-1")
	other := s.token("owner-2")

	bad := registrationPayload(false)
	bad["car_year"] = "20"
	status, body := s.do(nethttp.MethodPost, "/registrations", owner, bad)
	s.Equal(nethttp.StatusBadRequest, status)
	s.Contains(body, "car_year")

	_, body = s.do(nethttp.MethodPost, "/registrations", owner, registrationPayload(false))
	id := s.decode(body).Data.ID

	status, _ = s.do(nethttp.MethodPost, "/registrations/"+id+"/submit", other, nil)
	s.Equal(nethttp.StatusForbidden, status)
	status, _ = s.do(nethttp.MethodGet, "/registrations/"+id, other, nil)
	s.Equal(nethttp.StatusForbidden, status)
	status, _ = s.do(nethttp.MethodGet, "/registrations/does-not-exist", owner, nil)
	s.Equal(nethttp.StatusNotFound, status)
	status, _ = s.do(nethttp.MethodGet, "/registrations", "", nil)
	s.Equal(nethttp.StatusUnauthorized, status)
}

func (s *APISuite) TestSearchScopes() {
	owner := s.token("owner-1")
	other := s.token("owner-2")
	admin := s.token("admin-1")
	s.do(nethttp.MethodPost, "/registrations", owner, registrationPayload(false))
	s.do(nethttp.MethodPost, "/registrations", other, registrationPayload(false))

	status, body := s.do(nethttp.MethodGet, "/registrations/search?q=coro", owner, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.Equal(1, strings.Count(body, `"owner_id"`))

	status, _ = s.do(nethttp.MethodGet, "/registrations/search?q=c", owner, nil)
	s.Equal(nethttp.StatusBadRequest, status)

	status, _ = s.do(nethttp.MethodGet, "/admin/registrations/search?q=coro", owner, nil)
	s.Equal(nethttp.StatusForbidden, status)

	status, body = s.do(nethttp.MethodGet, "/admin/registrations/search?q=coro", admin, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.Equal(2, strings.Count(body, `"owner_id"`))
}

func (s *APISuite) TestAdminEndpoints() {
	owner := s.token("owner-1")
	admin := s.token("admin-1")
	_, body := s.do(nethttp.MethodPost, "/registrations", owner, registrationPayload(true))
	id := s.decode(body).Data.ID
	s.now = s.now.Add(22 * time.Hour)

	status, body := s.do(nethttp.MethodGet, "/admin/registrations/expiring?hours=3", admin, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.Contains(body, id)

	status, _ = s.do(nethttp.MethodGet, "/admin/registrations/expiring?hours=abc", admin, nil)
	s.Equal(nethttp.StatusBadRequest, status)

	status, body = s.do(nethttp.MethodGet, "/admin/registrations/auto", admin, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.NotContains(body, id)

	status, body = s.do(nethttp.MethodGet, "/admin/stats", admin, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.Contains(body, `"total_registrations":1`)
	s.Contains(body, `"total_submissions":1`)

	status, body = s.do(nethttp.MethodGet, "/admin/jobs", admin, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.Contains(body, worker.JobAutoRenewal)

	status, body = s.do(nethttp.MethodPost, "/admin/jobs/"+worker.JobAutoRenewal+"/run", admin, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.Contains(body, `"succeeded":2`)
	s.Equal([]string{worker.JobAutoRenewal}, s.jobs.ran)
}

func (s *APISuite) TestTokenIssuanceRejectsBadKey() {
	status, body := s.do(nethttp.MethodPost, "/auth/token", "", map[string]string{"client_key": "nope", "actor_id": "owner-1"})
	s.Equal(nethttp.StatusUnauthorized, status)
	s.Contains(body, "UNAUTHORIZED")
}

func (s *APISuite) TestHealthAndMetrics() {
	status, body := s.do(nethttp.MethodGet, "/health/live", "", nil)
	s.Equal(nethttp.StatusOK, status)
	s.Contains(body, "alive")

	status, _ = s.do(nethttp.MethodGet, "/health/ready", "", nil)
	s.Equal(nethttp.StatusOK, status)

	status, body = s.do(nethttp.MethodGet, "/metrics", "", nil)
	s.Equal(nethttp.StatusOK, status)
	s.Contains(body, "go_goroutines")

	status, _ = s.do(nethttp.MethodGet, "/nope", "", nil)
	s.Equal(nethttp.StatusNotFound, status)
}
