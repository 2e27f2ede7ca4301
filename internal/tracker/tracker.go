// Package tracker is the device-side synchronization engine: it merges the
// local fix stream and the session change feed into one event loop, throttles
// store writes, recomputes distance and bearing on every update, and drives
// the one-shot arrival latch. All shared state lives inside the loop
// goroutine, so the recompute step can never run concurrently with itself.
package tracker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/darry-Jnr/codemap-server-go/internal/config"
	"github.com/darry-Jnr/codemap-server-go/internal/feed"
	"github.com/darry-Jnr/codemap-server-go/internal/geo"
	"github.com/darry-Jnr/codemap-server-go/internal/model"
	"github.com/darry-Jnr/codemap-server-go/internal/notify"
)

// FeedSubscription is the device's view of the session change feed. In
// process it wraps a feed broker client; remote devices back it with their
// transport.
type FeedSubscription interface {
	Events() <-chan feed.Event
	Close()
}

// Config describes one participant's session context. The tracker holds no
// process-wide state: construct one per session, tear it down with Stop.
type Config struct {
	Snapshot model.Snapshot
	Role     model.Role
	SelfID   string
	SelfName string

	// WriteInterval defaults to config.LocationWriteInterval, ArrivalRadius
	// to config.ArrivalRadiusMetres. Overridable for tests.
	WriteInterval time.Duration
	ArrivalRadius float64
}

// PeerTrack is one tracked counterpart: solo sessions have exactly one, a
// group member tracks only the leader, and the leader tracks every member.
type PeerTrack struct {
	ID             string
	Name           string
	Location       model.GeoPoint
	DistanceMetres float64
	DistanceLabel  string
	BearingDegrees float64
}

// Update is the engine's output: the freshest composite state after any
// local or remote change. Consumers render it; they never mutate it.
type Update struct {
	Self         *model.GeoPoint
	Peers        []PeerTrack
	NearbyReady  bool
	ArrivalSent  bool
	TrackingLost bool
	LostReason   ProviderErrorKind
	Ended        bool
	EndReason    string
}

type peerState struct {
	name     string
	location model.GeoPoint
}

type Tracker struct {
	cfg      Config
	store    StoreClient
	sub      FeedSubscription
	provider LocationProvider
	notifier notify.Dispatcher

	updates chan Update
	confirm chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	done    chan struct{}
}

func New(cfg Config, store StoreClient, sub FeedSubscription, provider LocationProvider, notifier notify.Dispatcher) *Tracker {
	if cfg.WriteInterval <= 0 {
		cfg.WriteInterval = config.LocationWriteInterval
	}
	if cfg.ArrivalRadius <= 0 {
		cfg.ArrivalRadius = config.ArrivalRadiusMetres
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		cfg:      cfg,
		store:    store,
		sub:      sub,
		provider: provider,
		notifier: notifier,
		updates:  make(chan Update, 16),
		confirm:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Updates delivers composite state after every local or remote change. The
// channel closes on teardown.
func (t *Tracker) Updates() <-chan Update {
	return t.updates
}

// ConfirmArrival requests the one-shot arrival signal. It only takes effect
// while the latch is armed; the result is observable on Updates.
func (t *Tracker) ConfirmArrival() {
	select {
	case t.confirm <- struct{}{}:
	default:
	}
}

// Start launches the event loop and announces tracking. Only the first call
// does anything.
func (t *Tracker) Start() {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	t.notifier.TrackingStarted(t.primaryPeerName())
	go t.run()
}

// Stop tears down the fix stream and the feed subscription together and is
// safe to call any number of times, including after the session ended on
// its own or before Start was ever called.
func (t *Tracker) Stop() {
	t.cancel()
	if t.started.CompareAndSwap(false, true) {
		// The loop never launched; release everything directly.
		t.provider.Stop()
		t.sub.Close()
		close(t.updates)
		close(t.done)
	}
	<-t.done
}

// Done closes once the loop has fully torn down.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

func (t *Tracker) run() {
	defer close(t.done)
	defer close(t.updates)
	defer t.provider.Stop()
	defer t.sub.Close()

	snap := t.cfg.Snapshot
	sessionID := snap.SessionID()

	var (
		myPos        *model.GeoPoint
		lastWrite    time.Time
		pendingWrite bool
		trackingLost bool
		lostReason   ProviderErrorKind
		latch        Latch
		arrivalsSeen = map[string]bool{}
		// Leader fan-out entries are add/update only: members never leave
		// through the store, so order and presence are stable.
		peerOrder []string
		peers     = map[string]*peerState{}
	)

	expiresAt := snapshotExpiry(snap)
	t.mergeSnapshot(snap, peers, &peerOrder)

	flush := time.NewTicker(t.cfg.WriteInterval)
	defer flush.Stop()
	expiry := time.NewTicker(time.Second)
	defer expiry.Stop()

	emit := func(ended bool, reason string) {
		update := Update{
			Self:         myPos,
			Peers:        t.computePeers(myPos, peers, peerOrder),
			NearbyReady:  latch.Armed(),
			ArrivalSent:  latch.Fired(),
			TrackingLost: trackingLost,
			LostReason:   lostReason,
			Ended:        ended,
			EndReason:    reason,
		}
		select {
		case t.updates <- update:
		case <-t.ctx.Done():
		default:
			log.Warn().Str("sessionId", sessionID).Msg("tracker update buffer full, dropping update")
		}
	}

	recompute := func() {
		if myPos != nil {
			if peer := t.primaryPeer(peers, peerOrder); peer != nil {
				latch.Observe(geo.Distance(*myPos, peer.location), t.cfg.ArrivalRadius)
			}
		}
		emit(false, "")
	}

	end := func(reason string) {
		t.notifier.TrackingEnded(t.primaryPeerName())
		emit(true, reason)
	}

	write := func() {
		if myPos == nil {
			return
		}
		// A failed attempt consumes the interval too: at most one store call
		// per WriteInterval, outage or not.
		lastWrite = time.Now()
		if err := t.store.PublishLocation(t.ctx, sessionID, t.cfg.Role, t.cfg.SelfID, *myPos); err != nil {
			// Best-effort telemetry: keep the fix pending and let the next
			// interval retry it.
			log.Debug().Err(err).Str("sessionId", sessionID).Msg("location write failed")
			pendingWrite = true
			return
		}
		pendingWrite = false
	}

	for {
		select {
		case <-t.ctx.Done():
			end("stopped")
			return

		case fix, ok := <-t.provider.Fixes():
			if !ok {
				continue
			}
			point := fix.Point
			myPos = &point
			if trackingLost {
				trackingLost = false
				lostReason = ""
			}
			if time.Since(lastWrite) >= t.cfg.WriteInterval {
				write()
			} else {
				pendingWrite = true
			}
			recompute()

		case perr, ok := <-t.provider.Errors():
			if !ok {
				continue
			}
			// The feed subscription stays up; only the local stream is lost.
			log.Warn().Str("kind", string(perr.Kind)).Err(perr.Err).Msg("location provider error")
			trackingLost = true
			lostReason = perr.Kind
			emit(false, "")

		case <-flush.C:
			if pendingWrite && time.Since(lastWrite) >= t.cfg.WriteInterval {
				write()
			}

		case <-t.confirm:
			if !latch.Fire() {
				continue
			}
			if err := t.store.SignalArrival(t.ctx, sessionID, t.cfg.SelfName); err != nil {
				// The latch stays fired either way: arrival is at most once
				// per session, even when another participant won the race.
				log.Warn().Err(err).Str("sessionId", sessionID).Msg("arrival signal rejected")
			}
			arrivalsSeen[t.cfg.SelfName] = true
			emit(false, "")

		case <-expiry.C:
			if time.Now().After(expiresAt) {
				end("expired")
				return
			}

		case event, ok := <-t.sub.Events():
			if !ok {
				end("feed closed")
				return
			}
			switch event.Type {
			case feed.TypeSnapshot:
				var next model.Snapshot
				if err := json.Unmarshal(event.Data, &next); err != nil {
					log.Error().Err(err).Msg("failed to decode snapshot event")
					continue
				}
				expiresAt = snapshotExpiry(next)
				t.mergeSnapshot(next, peers, &peerOrder)
				if !next.Live() {
					end("cancelled")
					return
				}
				recompute()

			case feed.TypeArrival:
				var arrival model.Arrival
				if err := json.Unmarshal(event.Data, &arrival); err != nil {
					log.Error().Err(err).Msg("failed to decode arrival event")
					continue
				}
				if arrival.Name != t.cfg.SelfName && !arrivalsSeen[arrival.Name] {
					arrivalsSeen[arrival.Name] = true
					t.notifier.PeerArrived(arrival.Name)
				}

			case feed.TypeEnded:
				var payload feed.EndedPayload
				if err := json.Unmarshal(event.Data, &payload); err != nil {
					log.Error().Err(err).Msg("failed to decode ended event")
					continue
				}
				end(payload.Reason)
				return
			}
		}
	}
}

// mergeSnapshot folds the peer-location fields relevant to this role into
// the tracked set. Solo participants watch the other party, group members
// watch only the leader, and the leader watches every member.
func (t *Tracker) mergeSnapshot(snap model.Snapshot, peers map[string]*peerState, order *[]string) {
	upsert := func(id, name string, loc model.NullGeoPoint) {
		if id == "" || !loc.Valid {
			return
		}
		if existing, ok := peers[id]; ok {
			existing.name = name
			existing.location = loc.Point
			return
		}
		peers[id] = &peerState{name: name, location: loc.Point}
		*order = append(*order, id)
	}

	switch {
	case snap.Solo != nil:
		solo := snap.Solo
		if t.cfg.Role == model.RoleOwner {
			finderID, finderName := "", ""
			if solo.FinderID != nil {
				finderID = *solo.FinderID
			}
			if solo.FinderName != nil {
				finderName = *solo.FinderName
			}
			upsert(finderID, finderName, solo.FinderLocation)
		} else {
			upsert(solo.OwnerID, solo.OwnerName, solo.OwnerLocation)
		}

	case snap.Group != nil:
		group := snap.Group
		if t.cfg.Role == model.RoleOwner {
			for _, member := range group.Members {
				if loc, ok := group.MemberLocations[member.ID]; ok {
					upsert(member.ID, member.Name, model.NullGeoPoint{Point: loc, Valid: true})
				}
			}
		} else {
			upsert(group.OwnerID, group.OwnerName, group.OwnerLocation)
		}
	}
}

func (t *Tracker) computePeers(myPos *model.GeoPoint, peers map[string]*peerState, order []string) []PeerTrack {
	tracks := make([]PeerTrack, 0, len(order))
	for _, id := range order {
		peer := peers[id]
		track := PeerTrack{
			ID:       id,
			Name:     peer.name,
			Location: peer.location,
		}
		if myPos != nil {
			track.DistanceMetres = geo.Distance(*myPos, peer.location)
			track.DistanceLabel = geo.FormatDistance(track.DistanceMetres)
			track.BearingDegrees = geo.Bearing(*myPos, peer.location)
		}
		tracks = append(tracks, track)
	}
	return tracks
}

// primaryPeer is the counterpart the latch measures against: the single peer
// for solo participants and group members. The leader has no single
// counterpart, so the leader's latch never arms.
func (t *Tracker) primaryPeer(peers map[string]*peerState, order []string) *peerState {
	if t.cfg.Role == model.RoleOwner && t.cfg.Snapshot.Group != nil {
		return nil
	}
	if len(order) == 0 {
		return nil
	}
	return peers[order[0]]
}

func (t *Tracker) primaryPeerName() string {
	snap := t.cfg.Snapshot
	switch {
	case snap.Solo != nil:
		if t.cfg.Role == model.RoleOwner {
			if snap.Solo.FinderName != nil {
				return *snap.Solo.FinderName
			}
			return ""
		}
		return snap.Solo.OwnerName
	case snap.Group != nil:
		return snap.Group.OwnerName
	}
	return ""
}

func snapshotExpiry(snap model.Snapshot) time.Time {
	switch {
	case snap.Solo != nil:
		return snap.Solo.ExpiresAt
	case snap.Group != nil:
		return snap.Group.ExpiresAt
	}
	return time.Now()
}
