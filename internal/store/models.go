package store

import (
	"time"

	"github.com/hexbound/flock/internal/fingerprint"
	"github.com/hexbound/flock/internal/plan"
)

// Status is the lifecycle state of an identity.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusRunning  Status = "running"
)

// Identity is one synthetic browser persona. The fingerprint is assigned
// at creation and never regenerated in place.
type Identity struct {
	ID              string
	Name            string
	ProxyID         *int64
	AccountID       *int64
	Fingerprint     fingerprint.Fingerprint
	Status          Status
	Interactive     bool
	LastInteraction *time.Time
	CreatedAt       time.Time
}

// Proxy is an upstream connection endpoint, shareable across identities.
// Imports deduplicate on (Host, Port, Username).
type Proxy struct {
	ID       int64
	Host     string
	Port     int
	Username string
	Password string
	Protocol string
}

// Account is a linked webmail account. Imports deduplicate on Address.
type Account struct {
	ID       int64
	Address  string
	Secret   string
	Provider string
}

// CommandStatus tracks queue consumption.
type CommandStatus string

const (
	CommandPending  CommandStatus = "pending"
	CommandExecuted CommandStatus = "executed"
)

// QueuedCommand is one persisted automation step, owned by exactly one
// identity. The step itself is stored as its JSON shape.
type QueuedCommand struct {
	ID          int64
	IdentityID  string
	Command     plan.Command
	Status      CommandStatus
	ScheduledAt *time.Time
	ExecutedAt  *time.Time
	CreatedAt   time.Time
}
