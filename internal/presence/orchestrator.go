package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumameet/presenced/internal/domain"
	"github.com/lumameet/presenced/internal/geo"
	"github.com/lumameet/presenced/internal/push"
	"github.com/lumameet/presenced/internal/state"
	"github.com/lumameet/presenced/internal/transport"
)

// ErrInFlight is returned when a check-in or checkout is requested while one
// is already outstanding.
var ErrInFlight = errors.New("another presence operation is already in flight")

// APIClient is the slice of the remote API the orchestrator needs.
type APIClient interface {
	CheckIn(ctx context.Context, venueID string, point domain.GeoPoint) error
	CheckOut(ctx context.Context, venueID string) error
	Roster(ctx context.Context, venueID string) ([]domain.Attendee, error)
}

// Channel is the push-channel surface the orchestrator needs.
type Channel interface {
	On(event string, h push.Handler)
	Off(event string)
	JoinRoom(ctx context.Context, roomID string) error
	LeaveRoom(ctx context.Context, roomID string) error
}

// Orchestrator drives the full check-in sequence: geolocation fix, check-in
// request, roster fetch, push-room subscription, and teardown on checkout or
// forced end. It guarantees the store never reports checked-in without a
// server-confirmed venue.
type Orchestrator struct {
	api      APIClient
	channel  Channel
	geo      geo.Provider // nil means no geolocation capability
	store    *Store
	sessions state.Store

	opMu     sync.Mutex
	inFlight bool

	// stopped guards against store mutation after teardown: async results
	// that land after Stop are ignored.
	stopped atomic.Bool
}

// NewOrchestrator wires the orchestrator. provider may be nil when the device
// has no geolocation capability; check-ins then fail before any network call.
func NewOrchestrator(api APIClient, channel Channel, provider geo.Provider, store *Store, sessions state.Store) *Orchestrator {
	return &Orchestrator{
		api:      api,
		channel:  channel,
		geo:      provider,
		store:    store,
		sessions: sessions,
	}
}

// Store returns the presence store for read access and subscription.
func (o *Orchestrator) Store() *Store {
	return o.store
}

// CheckIn acquires a geolocation fix, submits the check-in, fetches the
// initial roster, and atomically publishes the new session. On any failure
// the store is left unchanged and a user-facing notice is queued.
//
// A too-far rejection leaves any prior checked-in state untouched; only the
// rejection and the server's suggested alternate venue are surfaced.
func (o *Orchestrator) CheckIn(ctx context.Context, venue domain.Venue) error {
	if o.geo == nil {
		checkInsTotal.WithLabelValues("no_capability").Inc()
		o.store.Notify(domain.NoticeWarning, "Geolocation is not supported on this device.")
		return geo.ErrUnsupported
	}

	if !o.begin() {
		return ErrInFlight
	}
	defer o.end()

	fix, err := o.geo.Position(ctx)
	if err != nil {
		checkInsTotal.WithLabelValues("location_error").Inc()
		o.store.Notify(domain.NoticeWarning, noticeForPositionError(err))
		return err
	}

	if err := o.api.CheckIn(ctx, venue.ID, fix.Point); err != nil {
		var tooFar *transport.TooFarError
		if errors.As(err, &tooFar) {
			checkInsTotal.WithLabelValues("too_far").Inc()
			o.store.Notify(domain.NoticeWarning, "You are too far from the venue to check in.")
			return err
		}
		checkInsTotal.WithLabelValues("request_error").Inc()
		o.store.Notify(domain.NoticeWarning, "Check-in failed. Please try again.")
		return fmt.Errorf("submit check-in: %w", err)
	}

	roster, err := o.api.Roster(ctx, venue.ID)
	if err != nil {
		checkInsTotal.WithLabelValues("request_error").Inc()
		o.store.Notify(domain.NoticeWarning, "Check-in could not be completed. Please try again.")
		return fmt.Errorf("fetch roster: %w", err)
	}

	if o.stopped.Load() {
		slog.Debug("Ignoring check-in result after teardown", "venue_id", venue.ID)
		return nil
	}

	o.store.SetSession(venue, roster)
	o.persist(ctx, venue)
	o.subscribeRoom(ctx, venue.ID)
	o.updateGauges()

	checkInsTotal.WithLabelValues("ok").Inc()
	slog.Info("Checked in", "venue_id", venue.ID, "venue", venue.Name, "roster_size", len(roster))
	return nil
}

// CheckOut submits the checkout for the current venue and clears all presence
// state. Calling it while not checked in is a no-op returning success. On
// failure the state is left unchanged so the caller may retry.
func (o *Orchestrator) CheckOut(ctx context.Context) error {
	snap := o.store.Snapshot()
	if !snap.CheckedIn {
		checkOutsTotal.WithLabelValues("noop").Inc()
		return nil
	}

	if !o.begin() {
		return ErrInFlight
	}
	defer o.end()

	if err := o.api.CheckOut(ctx, snap.Venue.ID); err != nil {
		checkOutsTotal.WithLabelValues("request_error").Inc()
		o.store.Notify(domain.NoticeWarning, "Checkout failed. Please try again.")
		return fmt.Errorf("submit checkout: %w", err)
	}

	if o.stopped.Load() {
		slog.Debug("Ignoring checkout result after teardown", "venue_id", snap.Venue.ID)
		return nil
	}

	// The confirmed checkout is the authoritative terminal state for this
	// venue; it wins over any push mutation that interleaved with the call.
	o.teardown(ctx, snap.Venue.ID)

	checkOutsTotal.WithLabelValues("ok").Inc()
	slog.Info("Checked out", "venue_id", snap.Venue.ID)
	return nil
}

// Restore loads a persisted session at startup. The venue is published
// optimistically in the restoring phase, then confirmed by fetching the
// roster; a failed fetch means the session is stale and everything is
// cleared, persisted copy included.
func (o *Orchestrator) Restore(ctx context.Context) error {
	sess, err := o.sessions.GetSession(ctx)
	if err != nil {
		return fmt.Errorf("load persisted session: %w", err)
	}
	if sess == nil {
		return nil
	}

	slog.Info("Restoring persisted session", "venue_id", sess.Venue.ID, "checked_in_at", sess.CheckedInAt)
	o.store.SetRestoring(sess.Venue)

	roster, err := o.api.Roster(ctx, sess.Venue.ID)
	if err != nil {
		slog.Warn("Persisted session is stale, clearing", "venue_id", sess.Venue.ID, "error", err)
		o.store.Clear()
		if clearErr := o.sessions.ClearSession(ctx); clearErr != nil {
			slog.Warn("Failed to clear stale session", "error", clearErr)
		}
		o.store.Notify(domain.NoticeInfo, "Your previous check-in has ended.")
		o.updateGauges()
		return nil
	}

	if o.stopped.Load() {
		return nil
	}

	o.store.SetSession(sess.Venue, roster)
	o.subscribeRoom(ctx, sess.Venue.ID)
	o.updateGauges()
	slog.Info("Session restored", "venue_id", sess.Venue.ID, "roster_size", len(roster))
	return nil
}

// Start brings the state machine up, restoring any persisted session.
func (o *Orchestrator) Start(ctx context.Context) error {
	return o.Restore(ctx)
}

// Stop tears down push subscriptions and marks the orchestrator stopped so
// late async results are ignored. The active session, if any, stays persisted
// so a restart can restore it; Stop is not a checkout.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.stopped.Store(true)

	snap := o.store.Snapshot()
	if snap.CheckedIn {
		o.unsubscribeRoom(ctx, snap.Venue.ID)
	}
}

// subscribeRoom registers push handlers for the venue's room and joins it.
// Registration is balanced with unsubscribeRoom; the channel's
// last-registration-wins contract means a repeated subscribe never duplicates
// delivery.
func (o *Orchestrator) subscribeRoom(ctx context.Context, venueID string) {
	o.channel.On(push.EventUserCheckedIn, func(data json.RawMessage) {
		var p push.UserCheckedIn
		if err := json.Unmarshal(data, &p); err != nil {
			slog.Warn("Malformed user-checked-in payload", "error", err)
			return
		}
		if o.stopped.Load() || !o.currentVenueIs(p.EventID) {
			return
		}
		o.store.AddAttendee(p.User.ToAttendee())
		pushEventsTotal.WithLabelValues(push.EventUserCheckedIn).Inc()
		o.updateGauges()
	})

	o.channel.On(push.EventUserCheckedOut, func(data json.RawMessage) {
		var p push.UserCheckedOut
		if err := json.Unmarshal(data, &p); err != nil {
			slog.Warn("Malformed user-checked-out payload", "error", err)
			return
		}
		if o.stopped.Load() || !o.currentVenueIs(p.EventID) {
			return
		}
		o.store.RemoveAttendee(p.UserID)
		pushEventsTotal.WithLabelValues(push.EventUserCheckedOut).Inc()
		o.updateGauges()
	})

	o.channel.On(push.EventForceCheckout, func(data json.RawMessage) {
		var p push.ForceCheckout
		if err := json.Unmarshal(data, &p); err != nil {
			slog.Warn("Malformed force-checkout payload", "error", err)
			return
		}
		if o.stopped.Load() || !o.currentVenueIs(p.EventID) {
			return
		}
		pushEventsTotal.WithLabelValues(push.EventForceCheckout).Inc()
		o.ForceEnd(p.Message)
	})

	o.channel.On(push.EventExpired, func(data json.RawMessage) {
		var p push.Expired
		if err := json.Unmarshal(data, &p); err != nil {
			slog.Warn("Malformed event-expired payload", "error", err)
			return
		}
		if o.stopped.Load() || !o.currentVenueIs(p.EventID) {
			return
		}
		pushEventsTotal.WithLabelValues(push.EventExpired).Inc()
		o.ForceEnd("This event has ended.")
	})

	if err := o.channel.JoinRoom(ctx, venueID); err != nil {
		slog.Warn("Failed to join push room", "room", venueID, "error", err)
	}
}

func (o *Orchestrator) unsubscribeRoom(ctx context.Context, venueID string) {
	o.channel.Off(push.EventUserCheckedIn)
	o.channel.Off(push.EventUserCheckedOut)
	o.channel.Off(push.EventForceCheckout)
	o.channel.Off(push.EventExpired)

	if err := o.channel.LeaveRoom(ctx, venueID); err != nil {
		slog.Warn("Failed to leave push room", "room", venueID, "error", err)
	}
}

// ForceEnd applies a server-initiated (or locally detected) end of the
// presence session: full teardown plus a notice carrying the reason. It is
// handled like a successful checkout, not like an error.
func (o *Orchestrator) ForceEnd(reason string) {
	snap := o.store.Snapshot()
	if !snap.CheckedIn {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	o.teardown(ctx, snap.Venue.ID)

	if reason == "" {
		reason = "Your check-in was ended by the server."
	}
	o.store.Notify(domain.NoticeForcedEnd, reason)
	slog.Info("Presence session force-ended", "venue_id", snap.Venue.ID, "reason", reason)
}

// teardown clears the store, the persisted session, and the push
// subscription. The store clear comes last so subscribers observe a single
// transition to the empty state.
func (o *Orchestrator) teardown(ctx context.Context, venueID string) {
	o.unsubscribeRoom(ctx, venueID)
	if err := o.sessions.ClearSession(ctx); err != nil {
		slog.Warn("Failed to clear persisted session", "error", err)
	}
	o.store.Clear()
	o.updateGauges()
}

func (o *Orchestrator) persist(ctx context.Context, venue domain.Venue) {
	sess := &domain.Session{Venue: venue, CheckedInAt: time.Now()}
	if err := o.sessions.SaveSession(ctx, sess); err != nil {
		// The live session stands; only restore-after-restart is degraded.
		slog.Warn("Failed to persist session", "venue_id", venue.ID, "error", err)
	}
}

func (o *Orchestrator) currentVenueIs(venueID string) bool {
	snap := o.store.Snapshot()
	return snap.Venue != nil && snap.Venue.ID == venueID
}

func (o *Orchestrator) begin() bool {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	if o.inFlight {
		return false
	}
	o.inFlight = true
	return true
}

func (o *Orchestrator) end() {
	o.opMu.Lock()
	o.inFlight = false
	o.opMu.Unlock()
}

func (o *Orchestrator) updateGauges() {
	snap := o.store.Snapshot()
	if snap.CheckedIn {
		checkedIn.Set(1)
	} else {
		checkedIn.Set(0)
	}
	rosterSize.Set(float64(len(snap.Roster)))
}

func noticeForPositionError(err error) string {
	var pe *geo.PositionError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case geo.KindDenied:
			return "Location permission denied."
		case geo.KindTimeout:
			return "Location request timed out."
		}
	}
	return "Location information is unavailable."
}
