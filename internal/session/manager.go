package session

import (
	"context"
	"log"
	"sync"
)

// StateSink receives every published-state snapshot for an identity,
// typically to push it over a live connection.
type StateSink func(identity string, state PublishedState)

// Manager owns the sessions, one per signed-in identity. Sessions are
// reference counted by attached connections: the first attach creates and
// starts the session, the last detach closes it. Teardown is synchronous,
// so a fresh attach never observes a half-stopped predecessor.
type Manager struct {
	deps Deps
	sink StateSink

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	session *Session
	refs    int
}

// NewManager creates a session manager. sink receives every snapshot each
// session publishes.
func NewManager(deps Deps, sink StateSink) *Manager {
	return &Manager{
		deps:     deps,
		sink:     sink,
		sessions: make(map[string]*sessionEntry),
	}
}

// Attach returns the identity's session, creating and starting it when
// this is the first attachment.
func (m *Manager) Attach(ctx context.Context, identity string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.sessions[identity]; ok {
		entry.refs++
		return entry.session
	}

	sess := New(identity, m.deps)
	sess.Start(ctx)
	m.sessions[identity] = &sessionEntry{session: sess, refs: 1}
	log.Printf("会话已启动: %s", identity)

	go func() {
		for state := range sess.Updates() {
			m.sink(identity, state)
		}
	}()

	return sess
}

// Detach releases one attachment. The session closes when the last
// attachment is released.
func (m *Manager) Detach(identity string) {
	m.mu.Lock()
	entry, ok := m.sessions[identity]
	if !ok {
		m.mu.Unlock()
		return
	}
	entry.refs--
	if entry.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, identity)
	m.mu.Unlock()

	entry.session.Close()
	log.Printf("会话已结束: %s", identity)
}

// Get returns the identity's live session, or nil when none exists.
func (m *Manager) Get(identity string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.sessions[identity]; ok {
		return entry.session
	}
	return nil
}

// CloseAll tears down every live session. Used on server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	entries := make([]*sessionEntry, 0, len(m.sessions))
	for _, entry := range m.sessions {
		entries = append(entries, entry)
	}
	m.sessions = make(map[string]*sessionEntry)
	m.mu.Unlock()

	for _, entry := range entries {
		entry.session.Close()
	}
}
