// Package runtime abstracts the container engine behind the narrow
// surface the session manager needs.
package runtime

import (
	"context"
	"time"
)

// Spec describes the container a session runs in. Labels carry the
// reverse proxy routing metadata and must be present at create time.
type Spec struct {
	Name       string
	Image      string
	Env        []string
	Port       string
	Memory     int64
	ShmSize    int64
	AutoRemove bool
	Labels     map[string]string
}

// Info is the subset of inspect state the manager reconciles against.
type Info struct {
	Running   bool
	StartedAt time.Time
}

// Client is implemented by the Docker adapter and by test fakes.
type Client interface {
	Create(ctx context.Context, spec Spec) (string, error)
	Start(ctx context.Context, containerID string) error
	Stop(ctx context.Context, containerID string) error
	Remove(ctx context.Context, containerID string) error
	Inspect(ctx context.Context, containerID string) (Info, error)
}
