package session

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/live-quiz/internal/bank"
	"github.com/gokatarajesh/live-quiz/internal/quiz"
	ws "github.com/gokatarajesh/live-quiz/pkg/http/ws"
)

func threeQuestionBank() *quiz.Bank {
	return &quiz.Bank{
		ID:                 "three",
		Title:              "Three",
		PerQuestionSeconds: 15,
		Questions: []quiz.Question{
			{Text: "q1", Options: []string{"a", "b"}, CorrectOption: 0, Points: 10},
			{Text: "q2", Options: []string{"a", "b", "c"}, CorrectOption: 2, Points: 20},
			{Text: "q3", Options: []string{"a", "b"}, CorrectOption: 1, Points: 30},
		},
	}
}

type published struct {
	group string
	msg   ws.Message
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(_ context.Context, group string, msg ws.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{group: group, msg: msg})
	return nil
}

// types lists the message types sent to group, in order.
func (p *recordingPublisher) types(group string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.msgs {
		if m.group == group {
			out = append(out, m.msg.Type)
		}
	}
	return out
}

func (p *recordingPublisher) last(group, msgType string) (ws.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.msgs) - 1; i >= 0; i-- {
		if p.msgs[i].group == group && p.msgs[i].msg.Type == msgType {
			return p.msgs[i].msg, true
		}
	}
	return ws.Message{}, false
}

// stepClock advances one second per reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	svc   *Service
	store Store
	pub   *recordingPublisher
	reg   *prometheus.Registry
}

func newFixture(t *testing.T, store Store, banks ...*quiz.Bank) *fixture {
	t.Helper()
	if store == nil {
		store = NewMemoryStore()
	}
	bankID := bank.DefaultID
	if len(banks) > 0 {
		bankID = banks[0].ID
	}
	reg := prometheus.NewRegistry()
	pub := &recordingPublisher{}
	svc := NewService(store, bank.NewStaticLoader(banks...), pub, NewMetrics(reg), zerolog.Nop(), Options{
		BankID:          bankID,
		QuestionSeconds: 30,
		Now:             newStepClock().Now,
	})
	return &fixture{svc: svc, store: store, pub: pub, reg: reg}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newRedisStore(t *testing.T, client *redis.Client) *RedisStore {
	t.Helper()
	return NewRedisStore(client, RedisOptions{LockWait: 100 * time.Millisecond}, zerolog.Nop())
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		if c := m.GetCounter(); c != nil {
			return c.GetValue()
		}
		return m.GetGauge().GetValue()
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}
