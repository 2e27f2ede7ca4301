package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/darry-Jnr/codemap-server-go/internal/database"
	"github.com/darry-Jnr/codemap-server-go/internal/feed"
	"github.com/darry-Jnr/codemap-server-go/internal/model"
	"github.com/darry-Jnr/codemap-server-go/internal/repository"
)

// The production transaction runner must keep satisfying the service's
// interface.
var _ TxRunner = (*database.DB)(nil)

// In-memory fakes. The session lifecycle spans many repository calls, so
// stateful fakes read better here than per-call expectation mocks.

type fakeSessionRepo struct {
	mu   sync.Mutex
	seq  int
	docs map[string]*model.SessionDoc

	// codeLookupErr fails both code lookups; codeAlwaysTaken makes every
	// generated code collide with a live session.
	codeLookupErr   error
	codeAlwaysTaken bool
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{docs: make(map[string]*model.SessionDoc)}
}

func (r *fakeSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository { return r }

func cloneDoc(d *model.SessionDoc) *model.SessionDoc {
	if d == nil {
		return nil
	}
	c := *d
	c.Members = append(model.MemberList(nil), d.Members...)
	c.MemberLocations = make(model.LocationMap, len(d.MemberLocations))
	for k, v := range d.MemberLocations {
		c.MemberLocations[k] = v
	}
	return &c
}

func (r *fakeSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.SessionDoc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	now := time.Now()
	doc := &model.SessionDoc{
		ID:              fmt.Sprintf("session-%d", r.seq),
		Code:            params.Code,
		Kind:            params.Kind,
		Status:          params.Status,
		OwnerID:         params.OwnerID,
		OwnerName:       params.OwnerName,
		Variant:         params.Variant,
		Members:         model.MemberList{},
		MaxMembers:      params.MaxMembers,
		MemberLocations: model.LocationMap{},
		ExpiresAt:       params.ExpiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.docs[doc.ID] = doc
	return cloneDoc(doc), nil
}

func (r *fakeSessionRepo) FindByID(ctx context.Context, id string) (*model.SessionDoc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneDoc(r.docs[id]), nil
}

func (r *fakeSessionRepo) FindSoloByCode(ctx context.Context, code string) (*model.SessionDoc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codeLookupErr != nil {
		return nil, r.codeLookupErr
	}
	if r.codeAlwaysTaken {
		return &model.SessionDoc{ID: "taken", Code: code, Kind: model.SessionKindSolo}, nil
	}
	for _, d := range r.docs {
		if d.Kind == model.SessionKindSolo && d.Code == code && model.SoloStatus(d.Status) == model.SoloStatusWaiting {
			return cloneDoc(d), nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) FindGroupByCode(ctx context.Context, code string) (*model.SessionDoc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codeLookupErr != nil {
		return nil, r.codeLookupErr
	}
	for _, d := range r.docs {
		if d.Kind == model.SessionKindGroup && d.Code == code && model.GroupStatus(d.Status) == model.GroupStatusActive {
			return cloneDoc(d), nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) MarkPending(ctx context.Context, id, finderID, finderName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.docs[id]
	d.Status = string(model.SoloStatusPending)
	d.FinderID = &finderID
	d.FinderName = &finderName
	return nil
}

func (r *fakeSessionRepo) Reopen(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.docs[id]
	d.Status = string(model.SoloStatusWaiting)
	d.FinderID = nil
	d.FinderName = nil
	return nil
}

func (r *fakeSessionRepo) MarkActive(ctx context.Context, id string) error {
	return r.setStatus(id, string(model.SoloStatusActive))
}

func (r *fakeSessionRepo) MarkDeclined(ctx context.Context, id string) error {
	return r.setStatus(id, string(model.SoloStatusDeclined))
}

func (r *fakeSessionRepo) MarkCancelled(ctx context.Context, id string) error {
	return r.setStatus(id, "cancelled")
}

func (r *fakeSessionRepo) setStatus(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[id].Status = status
	return nil
}

func (r *fakeSessionRepo) AppendMember(ctx context.Context, id string, member model.Member) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.docs[id]
	if d == nil || !d.Live(time.Now()) || d.Members.Contains(member.ID) || len(d.Members) >= d.MaxMembers {
		return false, nil
	}
	d.Members = append(d.Members, member)
	return true, nil
}

func (r *fakeSessionRepo) SetOwnerLocation(ctx context.Context, id string, p model.GeoPoint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.docs[id]
	if d == nil || !d.Live(time.Now()) {
		return false, nil
	}
	d.OwnerLocation = model.NullGeoPoint{Point: p, Valid: true}
	return true, nil
}

func (r *fakeSessionRepo) SetFinderLocation(ctx context.Context, id string, p model.GeoPoint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.docs[id]
	if d == nil || !d.Live(time.Now()) {
		return false, nil
	}
	d.FinderLocation = model.NullGeoPoint{Point: p, Valid: true}
	return true, nil
}

func (r *fakeSessionRepo) SetMemberLocation(ctx context.Context, id, memberID string, p model.GeoPoint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.docs[id]
	if d == nil || !d.Live(time.Now()) || !d.Members.Contains(memberID) {
		return false, nil
	}
	d.MemberLocations[memberID] = p
	return true, nil
}

func (r *fakeSessionRepo) RecordArrival(ctx context.Context, id, name string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.docs[id]
	if d == nil || d.ArrivedName != nil || !d.Live(time.Now()) {
		return false, nil
	}
	d.ArrivedName = &name
	d.ArrivedAt = &at
	return true, nil
}

func (r *fakeSessionRepo) SweepExpired(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var ids []string
	for _, d := range r.docs {
		if d.Expired(now) && d.Status != "cancelled" && d.Status != string(model.SoloStatusDeclined) {
			d.Status = "cancelled"
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}

// expire force-dates a stored session for TTL tests.
func (r *fakeSessionRepo) expire(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[id].ExpiresAt = time.Now().Add(-time.Minute)
}

type fakeFriendRepo struct {
	mu      sync.Mutex
	friends []model.Friend
}

func (r *fakeFriendRepo) WithTx(tx *sqlx.Tx) repository.FriendRepository { return r }

func (r *fakeFriendRepo) Upsert(ctx context.Context, userID, counterpartID, displayName string, connectedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range r.friends {
		if f.UserID == userID && f.CounterpartID == counterpartID {
			r.friends[i].DisplayName = displayName
			r.friends[i].LastConnectedAt = connectedAt
			return nil
		}
	}
	r.friends = append(r.friends, model.Friend{
		UserID:          userID,
		CounterpartID:   counterpartID,
		DisplayName:     displayName,
		LastConnectedAt: connectedAt,
	})
	return nil
}

func (r *fakeFriendRepo) ListByUser(ctx context.Context, userID string) ([]model.Friend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Friend
	for _, f := range r.friends {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out, nil
}

type fakeArrivalRepo struct {
	mu       sync.Mutex
	arrivals []model.Arrival
}

func (r *fakeArrivalRepo) WithTx(tx *sqlx.Tx) repository.ArrivalRepository { return r }

func (r *fakeArrivalRepo) Append(ctx context.Context, sessionID, name string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.arrivals = append(r.arrivals, model.Arrival{SessionID: sessionID, Name: name, At: at})
	return nil
}

func (r *fakeArrivalRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Arrival, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Arrival
	for _, a := range r.arrivals {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	SessionID string
	Event     feed.Event
}

func (p *fakePublisher) Publish(ctx context.Context, sessionID string, event feed.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{SessionID: sessionID, Event: event})
	return nil
}

func (p *fakePublisher) ofType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type serviceFixture struct {
	svc       *SessionService
	sessions  *fakeSessionRepo
	friends   *fakeFriendRepo
	arrivals  *fakeArrivalRepo
	publisher *fakePublisher
}

func newServiceFixture() *serviceFixture {
	sessions := newFakeSessionRepo()
	friends := &fakeFriendRepo{}
	arrivals := &fakeArrivalRepo{}
	publisher := &fakePublisher{}
	return &serviceFixture{
		svc:       NewSessionService(fakeTxRunner{}, sessions, friends, arrivals, publisher),
		sessions:  sessions,
		friends:   friends,
		arrivals:  arrivals,
		publisher: publisher,
	}
}
