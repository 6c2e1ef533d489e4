package session

import (
	"context"
	"sort"
	"sync"

	"github.com/gokatarajesh/live-quiz/internal/quiz/scoring"
)

// Store persists the single session: its snapshot, participants and results.
type Store interface {
	NextClientNumber(ctx context.Context) (int, error)
	AddClient(ctx context.Context, c Client) error
	GetClient(ctx context.Context, id string) (Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	SetClientStatus(ctx context.Context, id string, status ClientStatus) error
	SetAllClientStatus(ctx context.Context, status ClientStatus) error

	// SaveSubmission records s unless the client already has one, in which
	// case the stored submission comes back with created set to false.
	SaveSubmission(ctx context.Context, s Submission) (stored Submission, created bool, err error)
	// ListSubmissions returns results ranked by score, then time taken.
	ListSubmissions(ctx context.Context) ([]Submission, error)
	ClearSubmissions(ctx context.Context) error

	LoadSnapshot(ctx context.Context) (Snapshot, error)
	SaveSnapshot(ctx context.Context, snap Snapshot) error

	// Lock serialises lifecycle transitions across server instances.
	Lock(ctx context.Context) (unlock func() error, err error)
}

// MemoryStore keeps everything in process.
type MemoryStore struct {
	mu          sync.Mutex
	seq         int
	clients     map[string]Client
	submissions map[string]Submission
	snapshot    Snapshot
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients:     make(map[string]Client),
		submissions: make(map[string]Submission),
	}
}

func (m *MemoryStore) NextClientNumber(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

func (m *MemoryStore) AddClient(_ context.Context, c Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
	return nil
}

func (m *MemoryStore) GetClient(_ context.Context, id string) (Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return Client{}, ErrClientNotFound
	}
	return c, nil
}

func (m *MemoryStore) ListClients(context.Context) ([]Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	sortClients(out)
	return out, nil
}

func (m *MemoryStore) SetClientStatus(_ context.Context, id string, status ClientStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return ErrClientNotFound
	}
	c.Status = status
	m.clients[id] = c
	return nil
}

func (m *MemoryStore) SetAllClientStatus(_ context.Context, status ClientStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.clients {
		c.Status = status
		m.clients[id] = c
	}
	return nil
}

func (m *MemoryStore) SaveSubmission(_ context.Context, s Submission) (Submission, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.submissions[s.ClientID]; ok {
		return existing, false, nil
	}
	m.submissions[s.ClientID] = s
	return s, true, nil
}

func (m *MemoryStore) ListSubmissions(context.Context) ([]Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Submission, 0, len(m.submissions))
	for _, s := range m.submissions {
		out = append(out, s)
	}
	rankSubmissions(out)
	return out, nil
}

func (m *MemoryStore) ClearSubmissions(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions = make(map[string]Submission)
	return nil
}

func (m *MemoryStore) LoadSnapshot(context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot, nil
}

func (m *MemoryStore) SaveSnapshot(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = snap
	return nil
}

// Lock is a no-op; a single process already serialises through Service.
func (m *MemoryStore) Lock(context.Context) (func() error, error) {
	return func() error { return nil }, nil
}

func sortClients(cs []Client) {
	sort.SliceStable(cs, func(i, j int) bool {
		if !cs[i].JoinedAt.Equal(cs[j].JoinedAt) {
			return cs[i].JoinedAt.Before(cs[j].JoinedAt)
		}
		return cs[i].ID < cs[j].ID
	})
}

// rankSubmissions orders by score then time, with submission time breaking ties.
func rankSubmissions(subs []Submission) {
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].SubmittedAt.Before(subs[j].SubmittedAt)
	})
	scoring.Rank(subs, func(s Submission) (int, int) { return s.Score, s.TimeTaken })
}
