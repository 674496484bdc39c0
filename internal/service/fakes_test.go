package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spec-kit/guestpass-service/internal/domain"
	"github.com/spec-kit/guestpass-service/internal/executor"
	"github.com/spec-kit/guestpass-service/internal/notifier"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeExecutor returns result on every call. When gate is set, each call first
// signals started and then waits for gate to close or ctx to end.
type fakeExecutor struct {
	mu      sync.Mutex
	result  executor.Result
	calls   int
	seen    []domain.RegistrationFields
	gate    chan struct{}
	started chan struct{}
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{result: executor.Succeeded("accepted")}
}

func (e *fakeExecutor) Submit(ctx context.Context, fields domain.RegistrationFields) executor.Result {
	e.mu.Lock()
	e.calls++
	e.seen = append(e.seen, fields)
	gate, started, result := e.gate, e.started, e.result
	e.mu.Unlock()

	if gate != nil {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return executor.Failed("executor saw " + ctx.Err().Error())
		}
	}
	return result
}

func (e *fakeExecutor) SetResult(res executor.Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.result = res
}

func (e *fakeExecutor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type sentMessage struct {
	OwnerID string
	Message notifier.Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail bool
}

func (n *recordingNotifier) Notify(ctx context.Context, ownerID string, msg notifier.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("dm closed")
	}
	n.sent = append(n.sent, sentMessage{OwnerID: ownerID, Message: msg})
	return nil
}

func (n *recordingNotifier) Sent() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage{}, n.sent...)
}

func guestFields() domain.RegistrationFields {
	return domain.RegistrationFields{
		FirstName:         "ana",
		LastName:          "guest",
		LicensePlate:      "abc123",
		LicensePlateState: "tx",
		CarYear:           "2020",
		CarMake:           "Toyota",
		CarModel:          "Corolla",
		CarColor:          "Red",
		ResidentVisiting:  "Jordan Lee",
		ApartmentVisiting: "215",
		Email:             "ana@example.com",
	}
}
