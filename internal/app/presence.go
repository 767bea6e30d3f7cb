package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mkrasov/huddle/internal/core"
	"github.com/mkrasov/huddle/internal/domain"
)

// Presence maps authenticated users to their live connections. State is
// purely in-memory and rebuilt from join/disconnect events; a restart
// drops everything and clients re-join on reconnect.
type Presence struct {
	mu    sync.RWMutex
	users map[domain.UserID]map[core.ConnID]struct{}
	conns map[core.ConnID]domain.UserID
}

func NewPresence() *Presence {
	return &Presence{
		users: make(map[domain.UserID]map[core.ConnID]struct{}),
		conns: make(map[core.ConnID]domain.UserID),
	}
}

// Join registers the connection under the user and returns the current
// online set. Idempotent per (user, connection) pair. A connection can
// belong to at most one user; a re-join under a different identity moves it.
func (p *Presence) Join(user domain.UserID, conn core.ConnID) []domain.UserID {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.conns[conn]; ok && prev != user {
		p.removeLocked(prev, conn)
	}

	set, ok := p.users[user]
	if !ok {
		set = make(map[core.ConnID]struct{})
		p.users[user] = set
		log.Info().Str("module", "app.presence").Str("user", string(user)).Msg("user online")
	}
	set[conn] = struct{}{}
	p.conns[conn] = user

	return p.onlineLocked()
}

// Leave removes the connection from whichever user owns it. Reports the
// owning user and whether that user went fully offline.
func (p *Presence) Leave(conn core.ConnID) (user domain.UserID, wentOffline, found bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	user, found = p.conns[conn]
	if !found {
		return "", false, false
	}
	wentOffline = p.removeLocked(user, conn)
	if wentOffline {
		log.Info().Str("module", "app.presence").Str("user", string(user)).Msg("user offline")
	}
	return user, wentOffline, true
}

func (p *Presence) removeLocked(user domain.UserID, conn core.ConnID) bool {
	delete(p.conns, conn)
	set, ok := p.users[user]
	if !ok {
		return false
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(p.users, user)
		return true
	}
	return false
}

// Resolve returns every live connection of the user. An offline user
// yields an empty slice, never an error: callers deliver nothing.
func (p *Presence) Resolve(user domain.UserID) []core.ConnID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set := p.users[user]
	out := make([]core.ConnID, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// UserOf reports which user owns a connection, if any.
func (p *Presence) UserOf(conn core.ConnID) (domain.UserID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.conns[conn]
	return u, ok
}

func (p *Presence) Online() []domain.UserID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.onlineLocked()
}

func (p *Presence) onlineLocked() []domain.UserID {
	out := make([]domain.UserID, 0, len(p.users))
	for u := range p.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
