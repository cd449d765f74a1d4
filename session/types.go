package session

import "time"

type Type string

const (
	TypeBrowser Type = "browser"
	TypeDesktop Type = "desktop"
)

type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusExpired Status = "expired"
	StatusError   Status = "error"
)

// Terminal reports whether no further status transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusExpired || s == StatusError
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Caller is the resolved identity supplied by the auth collaborator.
// The manager never validates credentials itself.
type Caller struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

type Flavor string

const (
	FlavorUbuntu Flavor = "ubuntu"
	FlavorDebian Flavor = "debian"
	FlavorFedora Flavor = "fedora"
	FlavorAlpine Flavor = "alpine"
	FlavorArch   Flavor = "arch"
)

var ValidFlavors = map[Flavor]bool{
	FlavorUbuntu: true,
	FlavorDebian: true,
	FlavorFedora: true,
	FlavorAlpine: true,
	FlavorArch:   true,
}

type Record struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Type        Type       `json:"type"`
	Status      Status     `json:"status"`
	ContainerID string     `json:"-"`
	TargetURL   *string    `json:"targetUrl,omitempty"`
	Flavor      *Flavor    `json:"flavor,omitempty"`
	AccessURL   string     `json:"accessUrl,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	StoppedAt   *time.Time `json:"stoppedAt,omitempty"`
	LastError   *string    `json:"lastError,omitempty"`
}

type StartOptions struct {
	TargetURL string `json:"targetUrl,omitempty"`
	Flavor    string `json:"flavor,omitempty"`
}

type Event struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
