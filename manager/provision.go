package manager

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/juniorT34/disposable-backend/routing"
	"github.com/juniorT34/disposable-backend/runtime"
	"github.com/juniorT34/disposable-backend/session"
)

const (
	browserImage     = "linuxserver/chromium:latest"
	defaultStartPage = "https://www.duckduckgo.com"
	containerPort    = "3000/tcp"

	browserMemory  = 2 * 1024 * 1024 * 1024
	browserShmSize = 3 * 1024 * 1024 * 1024
	desktopMemory  = 3 * 1024 * 1024 * 1024
	desktopShmSize = 2 * 1024 * 1024 * 1024

	maxIDAttempts = 5
)

var desktopImageMap = map[session.Flavor]string{
	session.FlavorUbuntu: "linuxserver/webtop:ubuntu-kde",
	session.FlavorDebian: "linuxserver/webtop:debian-kde",
	session.FlavorFedora: "linuxserver/webtop:fedora-kde",
	session.FlavorAlpine: "linuxserver/webtop:alpine-kde",
	session.FlavorArch:   "linuxserver/webtop:arch-kde",
}

// Start provisions a new session: reserve an id, run the container,
// then publish the record. The registry is never locked across the
// runtime calls; only the final transition that attaches the container
// and access URL is atomic.
func (m *Manager) Start(ctx context.Context, caller session.Caller, sessionType session.Type, opts session.StartOptions) (session.Record, error) {
	rec, err := m.newRecord(caller, sessionType, opts)
	if err != nil {
		return session.Record{}, err
	}

	if !m.limiter(caller.UserID).Allow() {
		return session.Record{}, fmt.Errorf("%w: too many session starts", session.ErrLimitExceeded)
	}
	if err := m.reserveSlot(caller.UserID); err != nil {
		return session.Record{}, err
	}

	// Reserve an id. A collision is vanishingly rare but the insert is
	// the backstop, so retry with a fresh id rather than surfacing it.
	inserted := false
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		rec.ID = session.GenerateID(sessionType)
		if err := m.reg.Insert(rec); err == nil {
			inserted = true
			break
		}
	}
	if !inserted {
		m.releaseSlot(caller.UserID)
		return session.Record{}, fmt.Errorf("%w: could not allocate session id", session.ErrProvisioningFailure)
	}

	accessURL, labels := routing.Build(rec.ID, m.cfg.Environment, m.cfg.ParentDomain)
	spec := buildSpec(rec, labels)

	createCtx, cancel := context.WithTimeout(ctx, m.cfg.RuntimeTimeout)
	containerID, err := m.rt.Create(createCtx, spec)
	if err == nil {
		err = m.rt.Start(createCtx, containerID)
	}
	cancel()

	if err != nil {
		m.failProvisioning(ctx, rec.ID, containerID, err)
		m.releaseSlot(caller.UserID)
		return session.Record{}, fmt.Errorf("%w: %v", session.ErrProvisioningFailure, err)
	}

	updated, err := m.reg.CompareAndTransition(rec.ID, session.StatusRunning, func(r *session.Record) {
		r.ContainerID = containerID
		r.AccessURL = accessURL
	})
	if err != nil {
		// Unreachable in practice: the record is unpublished and only
		// this goroutine holds its id.
		return session.Record{}, fmt.Errorf("commit session %s: %w", rec.ID, err)
	}

	// The save is queued before the record is published: once visible, a
	// concurrent stop's status update is guaranteed to be ordered after it.
	m.persistSave(updated)

	if err := m.reg.Publish(rec.ID); err != nil {
		return session.Record{}, fmt.Errorf("publish session %s: %w", rec.ID, err)
	}

	m.hub.Publish(session.Event{
		SessionID: updated.ID,
		UserID:    updated.UserID,
		Status:    session.StatusRunning,
		Timestamp: m.now(),
	})

	log.Printf("[manager] started %s session %s for user %s", sessionType, updated.ID, caller.UserID)
	return updated, nil
}

func (m *Manager) newRecord(caller session.Caller, sessionType session.Type, opts session.StartOptions) (session.Record, error) {
	now := m.now()
	rec := session.Record{
		UserID:    caller.UserID,
		Type:      sessionType,
		Status:    session.StatusRunning,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.DefaultSessionDuration),
	}

	switch sessionType {
	case session.TypeBrowser:
		if opts.Flavor != "" {
			return session.Record{}, fmt.Errorf("%w: flavor is only valid for desktop sessions", session.ErrInvalidArgument)
		}
		if opts.TargetURL != "" {
			if err := validateTargetURL(opts.TargetURL); err != nil {
				return session.Record{}, err
			}
			target := opts.TargetURL
			rec.TargetURL = &target
		}
	case session.TypeDesktop:
		if opts.TargetURL != "" {
			return session.Record{}, fmt.Errorf("%w: target url is only valid for browser sessions", session.ErrInvalidArgument)
		}
		flavor := session.FlavorUbuntu
		if opts.Flavor != "" {
			flavor = session.Flavor(opts.Flavor)
			if !session.ValidFlavors[flavor] {
				return session.Record{}, fmt.Errorf("%w: unknown flavor %q", session.ErrInvalidArgument, opts.Flavor)
			}
		}
		rec.Flavor = &flavor
	default:
		return session.Record{}, fmt.Errorf("%w: unknown session type %q", session.ErrInvalidArgument, sessionType)
	}

	return rec, nil
}

// failProvisioning cleans up a partially created container and records
// the failure, leaving an inspectable Error session behind instead of
// an orphaned container.
func (m *Manager) failProvisioning(ctx context.Context, id, containerID string, cause error) {
	if containerID != "" {
		removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RuntimeTimeout)
		if err := m.rt.Remove(removeCtx, containerID); err != nil {
			log.Printf("[manager] cleanup partial container for %s: %v", id, err)
		}
		cancel()
	}

	now := m.now()
	msg := cause.Error()
	updated, err := m.reg.CompareAndTransition(id, session.StatusRunning, func(r *session.Record) {
		r.Status = session.StatusError
		r.StoppedAt = &now
		r.LastError = &msg
	})
	if err != nil {
		log.Printf("[manager] record provisioning failure for %s: %v", id, err)
		return
	}

	m.persistSave(updated)
	if err := m.reg.Publish(id); err != nil {
		log.Printf("[manager] publish failed session %s: %v", id, err)
	}

	m.hub.Publish(session.Event{
		SessionID: id,
		UserID:    updated.UserID,
		Status:    session.StatusError,
		Timestamp: now,
	})
	log.Printf("[manager] provisioning failed for %s: %v", id, cause)
}

func buildSpec(rec session.Record, labels routing.Labels) runtime.Spec {
	spec := runtime.Spec{
		Name:       rec.ID,
		Port:       containerPort,
		AutoRemove: true,
		Labels:     labels,
		Env: []string{
			"PUID=1000",
			"PGID=1000",
			"TZ=UTC",
		},
	}

	if rec.Type == session.TypeBrowser {
		startPage := defaultStartPage
		if rec.TargetURL != nil {
			startPage = *rec.TargetURL
		}
		spec.Image = browserImage
		spec.Memory = browserMemory
		spec.ShmSize = browserShmSize
		spec.Env = append(spec.Env,
			"CHROME_CLI="+startPage,
			"CHROME_OPTS=--no-sandbox --disable-dev-shm-usage",
		)
		return spec
	}

	spec.Image = desktopImageMap[*rec.Flavor]
	spec.Memory = desktopMemory
	spec.ShmSize = desktopShmSize
	return spec
}

func validateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: target url must be an absolute http(s) url", session.ErrInvalidArgument)
	}
	return nil
}
