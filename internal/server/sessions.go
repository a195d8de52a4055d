package server

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"resumerecon/internal/types"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ReviewSession is the server-side state of one reviewer working through a
// suggestion list. Suggestions are immutable; accepted ids and edits change
// under mu.
type ReviewSession struct {
	mu sync.Mutex

	ID          string
	Suggestions []types.Suggestion
	Accepted    types.AcceptedSet
	Edited      types.EditedText
	CreatedAt   time.Time
	UpdatedAt   time.Time

	closed atomic.Bool
}

// SessionView is the JSON shape of a session
type SessionView struct {
	ID          string             `json:"id"`
	Suggestions []types.Suggestion `json:"suggestions"`
	AcceptedIDs []string           `json:"acceptedIds"`
	EditedText  types.EditedText   `json:"editedText"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
	Preview     string             `json:"preview"`
	Warnings    any                `json:"warnings,omitempty"`
}

// Lock serializes mutations of the session
func (rs *ReviewSession) Lock() { rs.mu.Lock() }
func (rs *ReviewSession) Unlock() { rs.mu.Unlock() }

// Closed reports whether the session was applied or discarded
func (rs *ReviewSession) Closed() bool {
	return rs.closed.Load()
}

// UnknownIDs returns the ids that match no suggestion in the session
func (rs *ReviewSession) UnknownIDs(ids []string) []string {
	var unknown []string
	for _, id := range ids {
		if !slices.ContainsFunc(rs.Suggestions, func(s types.Suggestion) bool { return s.ID == id }) {
			unknown = append(unknown, id)
		}
	}
	return unknown
}

// ApplyAccept applies an accept request. Rejections win over acceptances
// listed in the same request.
func (rs *ReviewSession) ApplyAccept(req AcceptRequest) {
	switch {
	case req.RejectAll:
		rs.Accepted = types.NewAcceptedSet()
	case req.AcceptAll:
		rs.Accepted = types.AcceptAll(rs.Suggestions)
	}
	for _, id := range req.Accept {
		rs.Accepted.Add(id)
	}
	for _, id := range req.Reject {
		rs.Accepted.Remove(id)
	}
	rs.UpdatedAt = time.Now()
}

// SetEdit stores an override for id, or clears it when text is nil
func (rs *ReviewSession) SetEdit(id string, text *string) {
	if text == nil {
		delete(rs.Edited, id)
	} else {
		rs.Edited[id] = *text
	}
	rs.UpdatedAt = time.Now()
}

// Snapshot copies the mutable state so reconciling can run without the lock
func (rs *ReviewSession) Snapshot() ([]types.Suggestion, types.AcceptedSet, types.EditedText) {
	return rs.Suggestions, maps.Clone(rs.Accepted), maps.Clone(rs.Edited)
}

func (rs *ReviewSession) view(preview string, warnings any) SessionView {
	ids := rs.Accepted.IDs()
	slices.Sort(ids)
	return SessionView{
		ID:          rs.ID,
		Suggestions: rs.Suggestions,
		AcceptedIDs: ids,
		EditedText:  maps.Clone(rs.Edited),
		CreatedAt:   rs.CreatedAt,
		UpdatedAt:   rs.UpdatedAt,
		Preview:     preview,
		Warnings:    warnings,
	}
}

// SessionStore keeps review sessions in memory with a sliding TTL
type SessionStore struct {
	cache     *cache.Cache
	onExpired func(id string)
}

// NewSessionStore creates a store. A ttl of zero keeps sessions until they
// are applied or discarded.
func NewSessionStore(ttl, cleanupInterval time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	store := &SessionStore{cache: cache.New(ttl, cleanupInterval)}
	store.cache.OnEvicted(func(id string, v any) {
		if rs, ok := v.(*ReviewSession); ok && !rs.Closed() && store.onExpired != nil {
			store.onExpired(id)
		}
	})
	return store
}

// OnExpired registers fn to be called when a session times out unapplied.
// It must be set before sessions are created.
func (st *SessionStore) OnExpired(fn func(id string)) {
	st.onExpired = fn
}

// Create stores a new session with a random id
func (st *SessionStore) Create(suggestions []types.Suggestion, accepted types.AcceptedSet, edited types.EditedText) *ReviewSession {
	if accepted == nil {
		accepted = types.NewAcceptedSet()
	}
	if edited == nil {
		edited = types.EditedText{}
	}
	now := time.Now()
	rs := &ReviewSession{
		ID:          uuid.NewString(),
		Suggestions: suggestions,
		Accepted:    accepted,
		Edited:      edited,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	st.cache.Set(rs.ID, rs, cache.DefaultExpiration)
	return rs
}

// Get returns a live session
func (st *SessionStore) Get(id string) (*ReviewSession, bool) {
	if x, found := st.cache.Get(id); found {
		return x.(*ReviewSession), true
	}
	return nil, false
}

// Touch restarts the session's TTL after a change
func (st *SessionStore) Touch(rs *ReviewSession) {
	st.cache.Set(rs.ID, rs, cache.DefaultExpiration)
}

// Close marks the session closed and removes it. Callers hold the lock.
func (st *SessionStore) Close(rs *ReviewSession) {
	rs.closed.Store(true)
	st.cache.Delete(rs.ID)
}

// Count returns the number of stored sessions, including expired ones not
// yet purged
func (st *SessionStore) Count() int {
	return st.cache.ItemCount()
}
