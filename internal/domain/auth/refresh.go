package auth

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"eduverse-client-go/internal/platform/errors"
	"eduverse-client-go/internal/platform/observability"
)

// Event topics published by the coordinator.
const (
	TopicRefreshed     = "session:refreshed"
	TopicRefreshFailed = "session:refresh_failed"
)

const refreshKey = "refresh"

// Outcome is shared by every caller that joined the same refresh flight.
type Outcome struct {
	Credential string
	Identity   *Identity
	// IdentityRefreshed is false when the secondary identity fetch failed and
	// the identity came from the refresh payload, the previous session or the token.
	IdentityRefreshed bool
}

// Coordinator collapses concurrent refresh requests into one network call.
type Coordinator struct {
	authority Authority
	session   *SessionStore
	logger    Logger
	publisher Publisher

	group   singleflight.Group
	flights atomic.Int64
	joined  atomic.Int64
}

// CoordinatorOptions encapsulates the dependencies required to construct a Coordinator.
type CoordinatorOptions struct {
	Authority Authority
	Session   *SessionStore
	Logger    Logger
	Publisher Publisher
}

// NewCoordinator wires a Coordinator.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Authority == nil {
		return nil, errors.New(errors.KindBootstrap, "auth.coordinator", "authority is required")
	}
	if opts.Session == nil {
		return nil, errors.New(errors.KindBootstrap, "auth.coordinator", "session store is required")
	}
	if opts.Logger == nil {
		return nil, errors.New(errors.KindBootstrap, "auth.coordinator", "logger is required")
	}
	return &Coordinator{
		authority: opts.Authority,
		session:   opts.Session,
		logger:    opts.Logger,
		publisher: opts.Publisher,
	}, nil
}

// Refresh renews the credential. Callers arriving while a refresh is running
// receive that refresh's outcome; callers arriving after it resolved start a new one.
// On failure the session is left untouched and the error has kind refresh_failed.
func (c *Coordinator) Refresh(ctx context.Context) (Outcome, error) {
	// the flight outlives any single caller's cancellation
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return c.flight(flightCtx)
	})
	c.joined.Add(1)

	select {
	case res := <-ch:
		if res.Err != nil {
			return Outcome{}, res.Err
		}
		return res.Val.(Outcome), nil
	case <-ctx.Done():
		return Outcome{}, errors.Wrap(errors.KindRefreshFailed, "auth.refresh", "stopped waiting for refresh", ctx.Err())
	}
}

// RefreshStats counts refresh activity since the coordinator was built.
type RefreshStats struct {
	// Flights is the number of refresh calls sent to the authority.
	Flights int64
	// Joined is the number of Refresh calls served by those flights.
	Joined int64
}

// Stats returns the current counters.
func (c *Coordinator) Stats() RefreshStats {
	return RefreshStats{Flights: c.flights.Load(), Joined: c.joined.Load()}
}

func (c *Coordinator) flight(ctx context.Context) (Outcome, error) {
	c.flights.Add(1)
	ctx, end := observability.StartSpan(ctx, "auth", "refresh")

	version := c.session.Version()
	grant, err := c.authority.Refresh(ctx)
	if err != nil {
		failure := errors.Reclassify(errors.KindRefreshFailed, "auth.refresh", "credential renewal failed", err)
		c.logger.Warn("refresh failed: %v", err)
		c.publish(TopicRefreshFailed, failure)
		end(failure)
		return Outcome{}, failure
	}

	identity, refreshed := c.resolveIdentity(ctx, grant)
	stored, err := c.session.SetIfUnchanged(version, grant.Credential, identity)
	if err != nil {
		end(err)
		return Outcome{}, errors.Reclassify(errors.KindRefreshFailed, "auth.refresh", "cannot store refreshed session", err)
	}
	if !stored {
		// a login or logout landed while the flight was out; it wins
		current := c.session.Get()
		if !current.Valid() {
			failure := errors.New(errors.KindRefreshFailed, "auth.refresh", "session ended while refreshing")
			c.logger.Warn("refresh discarded: session ended while it was running")
			c.publish(TopicRefreshFailed, failure)
			end(failure)
			return Outcome{}, failure
		}
		c.logger.Debug("refresh discarded: session replaced while it was running")
		end(nil)
		return Outcome{Credential: current.Credential, Identity: current.Identity}, nil
	}

	c.logger.Info("credential refreshed: %s", Fingerprint(grant.Credential))
	observability.RecordMetric(ctx, "auth.refresh.identity_fetched", boolValue(refreshed),
		observability.Credential(Fingerprint(grant.Credential)))
	out := Outcome{Credential: grant.Credential, Identity: identity.Clone(), IdentityRefreshed: refreshed}
	c.publish(TopicRefreshed, out)
	end(nil)
	return out, nil
}

// resolveIdentity prefers a fresh identity fetch and falls back through the
// refresh payload, the current session and finally the token claims.
func (c *Coordinator) resolveIdentity(ctx context.Context, grant Grant) (*Identity, bool) {
	fetched, err := c.authority.Identity(ctx, grant.Credential)
	if err == nil && fetched != nil {
		return fetched, true
	}
	if err != nil {
		c.logger.Debug("identity fetch after refresh failed: %v", err)
	}

	if grant.Identity != nil {
		return grant.Identity, false
	}
	if current := c.session.Get().Identity; current != nil {
		return current, false
	}
	if derived, ok := IdentityFromCredential(grant.Credential); ok {
		return derived, false
	}
	return &Identity{}, false
}

func (c *Coordinator) publish(topic string, arg any) {
	if c.publisher != nil {
		c.publisher.Publish(topic, arg)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
