package domain

// SystemActorID identifies the scheduler when it acts on registrations.
const SystemActorID = "system"

// Actor is whoever invokes a lifecycle operation.
type Actor struct {
	ID     string
	Admin  bool
	System bool
}

// Scope is the privilege an operation requires on a registration.
type Scope string

const (
	// ScopeOwner allows the registration owner, admins and the system actor.
	ScopeOwner Scope = "OWNER"
	// ScopeAdmin allows admins and the system actor.
	ScopeAdmin Scope = "ADMIN"
)

// UserActor builds an actor for an interactive user.
func UserActor(id string, admin bool) Actor {
	return Actor{ID: id, Admin: admin}
}

// SystemActor is the privileged actor used by background jobs.
func SystemActor() Actor {
	return Actor{ID: SystemActorID, System: true}
}

// Privileged reports whether ownership filters are lifted for this actor.
func (a Actor) Privileged() bool {
	return a.Admin || a.System
}

// Trigger labels metrics and events with who started an operation.
func (a Actor) Trigger() string {
	if a.System {
		return "system"
	}
	return "user"
}
