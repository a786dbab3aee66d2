package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Message struct {
	Role    string
	Content string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SessionStore keeps a short chat history per session. Sessions idle for
// longer than the TTL are dropped.
type SessionStore struct {
	mu          sync.RWMutex
	sessions    map[string]*session
	maxMessages int
	ttl         time.Duration
	lastSweep   time.Time
	now         func() time.Time
}

type session struct {
	messages []Message
	lastSeen time.Time
}

// NewSessionStore keeps at most maxMessages per session (0 means unlimited)
// and forgets sessions idle for ttl (0 means never).
func NewSessionStore(maxMessages int, ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions:    make(map[string]*session),
		maxMessages: maxMessages,
		ttl:         ttl,
		now:         time.Now,
	}
}

func (m *SessionStore) Append(sessionID string, msgs ...Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweepLocked(now)
	sess, ok := m.sessions[sessionID]
	if !ok || m.expired(sess, now) {
		sess = &session{}
		m.sessions[sessionID] = sess
	}
	sess.messages = append(sess.messages, msgs...)
	sess.lastSeen = now
	m.trimLocked(sess)
}

func (m *SessionStore) Get(sessionID string) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	if !ok || m.expired(sess, m.now()) {
		return []Message{}
	}
	copyMsgs := make([]Message, len(sess.messages))
	copy(copyMsgs, sess.messages)
	return copyMsgs
}

func (m *SessionStore) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Len reports how many sessions are held, expired or not.
func (m *SessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionStore) expired(sess *session, now time.Time) bool {
	return m.ttl > 0 && now.Sub(sess.lastSeen) > m.ttl
}

// sweepLocked drops expired sessions, at most once per minute.
func (m *SessionStore) sweepLocked(now time.Time) {
	if m.ttl <= 0 || now.Sub(m.lastSweep) < time.Minute {
		return
	}
	m.lastSweep = now
	for id, sess := range m.sessions {
		if m.expired(sess, now) {
			delete(m.sessions, id)
		}
	}
}

func (m *SessionStore) trimLocked(sess *session) {
	if m.maxMessages <= 0 {
		return
	}
	if len(sess.messages) > m.maxMessages {
		sess.messages = sess.messages[len(sess.messages)-m.maxMessages:]
	}
}

// MemoryStatementStore is a StatementStore that lives only as long as the process.
type MemoryStatementStore struct {
	mu         sync.RWMutex
	statements []Statement
	trained    map[string]int
	nextID     int64
}

func NewMemoryStatementStore() *MemoryStatementStore {
	return &MemoryStatementStore{trained: make(map[string]int)}
}

func (m *MemoryStatementStore) Create(_ context.Context, st Statement) (Statement, error) {
	if st.Text == "" {
		return Statement{}, fmt.Errorf("statement text is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(st), nil
}

func (m *MemoryStatementStore) CreateMany(_ context.Context, sts []Statement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range sts {
		if st.Text == "" {
			continue
		}
		m.appendLocked(st)
	}
	return nil
}

func (m *MemoryStatementStore) CreateCorpus(_ context.Context, corpus string, sts []Statement) error {
	if corpus == "" {
		return fmt.Errorf("corpus name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range sts {
		if st.Text != "" {
			m.appendLocked(st)
		}
	}
	m.trained[corpus] = len(sts)
	return nil
}

func (m *MemoryStatementStore) appendLocked(st Statement) Statement {
	m.nextID++
	st.ID = m.nextID
	st.CreatedAt = time.Now()
	m.statements = append(m.statements, st)
	return st
}

func (m *MemoryStatementStore) Prompts(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, st := range m.statements {
		if st.InResponseTo == "" {
			continue
		}
		if _, ok := seen[st.InResponseTo]; ok {
			continue
		}
		seen[st.InResponseTo] = struct{}{}
		out = append(out, st.InResponseTo)
	}
	return out, nil
}

func (m *MemoryStatementStore) Responses(_ context.Context, prompt string) ([]Statement, error) {
	if prompt == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Statement
	for _, st := range m.statements {
		if st.InResponseTo == prompt {
			out = append(out, st)
		}
	}
	return out, nil
}

func (m *MemoryStatementStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statements), nil
}

func (m *MemoryStatementStore) IsTrained(_ context.Context, corpus string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.trained[corpus]
	return ok, nil
}

func (m *MemoryStatementStore) MarkTrained(_ context.Context, corpus string, statements int) error {
	if corpus == "" {
		return fmt.Errorf("corpus name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trained[corpus] = statements
	return nil
}
