package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/live-quiz/internal/bank"
	"github.com/gokatarajesh/live-quiz/internal/quiz"
	"github.com/gokatarajesh/live-quiz/internal/quiz/scoring"
	ws "github.com/gokatarajesh/live-quiz/pkg/http/ws"
)

// Options configures a Service.
type Options struct {
	// BankID is played when a session starts.
	BankID string
	// QuestionSeconds fills in banks that carry no per-question limit.
	QuestionSeconds int
	Now             func() time.Time
}

// Service is the session authority: it owns the lifecycle, the current
// question index and the recorded results.
type Service struct {
	store   Store
	loader  bank.Loader
	pub     Publisher
	metrics *Metrics
	logger  zerolog.Logger
	opts    Options

	// mu serialises lifecycle transitions within this process; store.Lock
	// extends that across instances.
	mu sync.Mutex
}

// NewService creates the session authority.
func NewService(store Store, loader bank.Loader, pub Publisher, metrics *Metrics, logger zerolog.Logger, opts Options) *Service {
	if opts.BankID == "" {
		opts.BankID = bank.DefaultID
	}
	if opts.QuestionSeconds <= 0 {
		opts.QuestionSeconds = 30
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{
		store:   store,
		loader:  loader,
		pub:     pub,
		metrics: metrics,
		logger:  logger.With().Str("component", "session_service").Logger(),
		opts:    opts,
	}
}

// Bank returns the bank of the running session, or the configured one when idle.
func (s *Service) Bank(ctx context.Context) (*quiz.Bank, error) {
	snap, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.bankFor(ctx, snap)
}

func (s *Service) bankFor(ctx context.Context, snap Snapshot) (*quiz.Bank, error) {
	id := snap.BankID
	if id == "" {
		id = s.opts.BankID
	}
	loaded, err := s.loader.LoadBank(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBankUnavailable, err)
	}
	b := *loaded
	b.PerQuestionSeconds = loaded.QuestionSeconds(s.opts.QuestionSeconds)
	return &b, nil
}

// Connect registers a participant. A caller may propose its own id (a
// UUID); connecting again with an id that is already registered returns
// that client unchanged, so a retried join never adds a second entry.
func (s *Service) Connect(ctx context.Context, clientID string) (JoinResult, error) {
	if clientID != "" {
		if _, err := uuid.Parse(clientID); err != nil {
			return JoinResult{}, ErrInvalidClientID
		}
	}
	snap, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	b, err := s.bankFor(ctx, snap)
	if err != nil {
		return JoinResult{}, err
	}

	if clientID != "" {
		existing, err := s.store.GetClient(ctx, clientID)
		switch {
		case err == nil:
			s.logger.Info().Str("client_id", existing.ID).Str("client_name", existing.Name).Msg("client rejoined")
			return s.joinResult(ctx, existing, b, snap)
		case !errors.Is(err, ErrClientNotFound):
			return JoinResult{}, err
		}
	} else {
		clientID = uuid.New().String()
	}

	n, err := s.store.NextClientNumber(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	c := Client{
		ID:       clientID,
		Name:     fmt.Sprintf("Client %d", n),
		Status:   ClientWaiting,
		JoinedAt: s.opts.Now(),
	}
	if snap.Active && !snap.Ended {
		c.Status = ClientQuizActive
	}
	if err := s.store.AddClient(ctx, c); err != nil {
		return JoinResult{}, err
	}

	res, err := s.joinResult(ctx, c, b, snap)
	if err != nil {
		return JoinResult{}, err
	}
	s.metrics.ClientsConnected.Inc()
	s.logger.Info().Str("client_id", c.ID).Str("client_name", c.Name).Int("total_clients", res.TotalClients).Msg("client connected")

	s.publish(ctx, ws.GroupAdmins, ws.TypeClientConnected, ws.ClientConnectedPayload{
		ClientID:     c.ID,
		ClientName:   c.Name,
		TotalClients: res.TotalClients,
	})
	return res, nil
}

func (s *Service) joinResult(ctx context.Context, c Client, b *quiz.Bank, snap Snapshot) (JoinResult, error) {
	clients, err := s.store.ListClients(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	running := snap.Active && !snap.Ended
	res := JoinResult{
		Client:       c,
		Bank:         b,
		TotalClients: len(clients),
		Active:       running,
	}
	if running {
		idx := snap.CurrentIndex
		res.CurrentIndex = &idx
	}
	return res, nil
}

// MarkReady moves a waiting participant to ready once its push channel is up.
func (s *Service) MarkReady(ctx context.Context, clientID string) error {
	c, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	if c.Status != ClientWaiting {
		return nil
	}
	return s.store.SetClientStatus(ctx, clientID, ClientReady)
}

// Status summarises the session.
func (s *Service) Status(ctx context.Context) (StatusView, error) {
	snap, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return StatusView{}, err
	}
	clients, err := s.store.ListClients(ctx)
	if err != nil {
		return StatusView{}, err
	}

	view := StatusView{
		Active:       snap.Active,
		Ended:        snap.Ended,
		TotalClients: len(clients),
	}
	for _, c := range clients {
		if c.Status == ClientCompleted {
			view.CompletedClients++
		}
	}
	if snap.Active {
		idx := snap.CurrentIndex
		view.CurrentIndex = &idx
		if b, err := s.bankFor(ctx, snap); err == nil {
			view.TotalQuestions = b.Len()
		}
	}
	return view, nil
}

// Start opens a session on the first question.
func (s *Service) Start(ctx context.Context) (Snapshot, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	defer unlock()

	snap, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if snap.Ended {
		return snap, ErrSessionEnded
	}
	if snap.Active {
		return snap, ErrAlreadyInProgress
	}

	b, err := s.bankFor(ctx, Snapshot{})
	if err != nil {
		return Snapshot{}, err
	}
	if err := s.store.ClearSubmissions(ctx); err != nil {
		return Snapshot{}, err
	}
	if err := s.store.SetAllClientStatus(ctx, ClientQuizActive); err != nil {
		return Snapshot{}, err
	}

	snap = Snapshot{
		Active:       true,
		CurrentIndex: 0,
		BankID:       b.ID,
		StartedAt:    s.opts.Now(),
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return Snapshot{}, err
	}

	s.metrics.SessionsStarted.Inc()
	s.metrics.CurrentQuestion.Set(0)
	s.logger.Info().Str("bank_id", b.ID).Int("questions", b.Len()).Msg("session started")

	payload := ws.SessionStartedPayload{Quiz: b, CurrentQuestion: 0}
	s.publish(ctx, ws.GroupClients, ws.TypeSessionStarted, payload)
	s.publish(ctx, ws.GroupAdmins, ws.TypeSessionStarted, payload)
	return snap, nil
}

// Advance moves the session to index, clamped into the bank. The index
// only moves forward; a target at or behind the current question is a
// no-op and reports changed as false.
func (s *Service) Advance(ctx context.Context, index int) (Snapshot, bool, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return Snapshot{}, false, err
	}
	defer unlock()

	snap, err := s.runningSnapshot(ctx)
	if err != nil {
		return snap, false, err
	}
	return s.advance(ctx, snap, index)
}

// Next moves the session one question forward.
func (s *Service) Next(ctx context.Context) (Snapshot, bool, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return Snapshot{}, false, err
	}
	defer unlock()

	snap, err := s.runningSnapshot(ctx)
	if err != nil {
		return snap, false, err
	}
	return s.advance(ctx, snap, snap.CurrentIndex+1)
}

func (s *Service) advance(ctx context.Context, snap Snapshot, index int) (Snapshot, bool, error) {
	b, err := s.bankFor(ctx, snap)
	if err != nil {
		return snap, false, err
	}
	if last := b.Len() - 1; index > last {
		index = last
	}
	if index < 0 {
		index = 0
	}
	if index <= snap.CurrentIndex {
		return snap, false, nil
	}

	snap.CurrentIndex = index
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return snap, false, err
	}

	s.metrics.QuestionAdvances.Inc()
	s.metrics.CurrentQuestion.Set(float64(index))
	s.logger.Info().Int("index", index).Int("total", b.Len()).Msg("question advanced")

	payload := ws.QuestionChangedPayload{CurrentQuestion: index, TotalQuestions: b.Len()}
	s.publish(ctx, ws.GroupClients, ws.TypeQuestionChanged, payload)
	s.publish(ctx, ws.GroupAdmins, ws.TypeQuestionChanged, payload)
	return snap, true, nil
}

// End closes the session; participants submit whatever they have. Ending
// an already ended session changes nothing.
func (s *Service) End(ctx context.Context) (Snapshot, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	defer unlock()

	snap, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if !snap.Active {
		return snap, ErrNotInProgress
	}
	if snap.Ended {
		return snap, nil
	}

	snap.Ended = true
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return Snapshot{}, err
	}
	s.logger.Info().Int("index", snap.CurrentIndex).Msg("session ended")

	payload := ws.SessionEndedPayload{Reason: "ended by admin"}
	s.publish(ctx, ws.GroupClients, ws.TypeSessionEnded, payload)
	s.publish(ctx, ws.GroupAdmins, ws.TypeSessionEnded, payload)
	return snap, nil
}

// Reset returns to the pre-start state: results are discarded and every
// participant waits for the next start.
func (s *Service) Reset(ctx context.Context) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.store.ClearSubmissions(ctx); err != nil {
		return err
	}
	if err := s.store.SetAllClientStatus(ctx, ClientWaiting); err != nil {
		return err
	}
	if err := s.store.SaveSnapshot(ctx, Snapshot{}); err != nil {
		return err
	}

	s.metrics.CurrentQuestion.Set(-1)
	s.logger.Info().Msg("session reset")

	s.publish(ctx, ws.GroupClients, ws.TypeSessionReset, nil)
	s.publish(ctx, ws.GroupAdmins, ws.TypeSessionReset, nil)
	return nil
}

// Submit scores and records a participant's answers. Each client is
// recorded once; a repeat returns the stored submission with duplicate set.
func (s *Service) Submit(ctx context.Context, clientID string, answers quiz.Answers, timeTaken int) (Submission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return Submission{}, false, err
	}
	snap, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return Submission{}, false, err
	}
	if !snap.Active {
		return Submission{}, false, ErrNotInProgress
	}
	b, err := s.bankFor(ctx, snap)
	if err != nil {
		return Submission{}, false, err
	}

	if timeTaken < 0 {
		timeTaken = 0
	}
	res := scoring.Evaluate(b, answers)
	sub := Submission{
		ClientID:    c.ID,
		ClientName:  c.Name,
		Score:       res.Score,
		MaxScore:    res.MaxScore,
		Percentage:  res.Percentage,
		TimeTaken:   timeTaken,
		Answers:     res.Answers,
		SubmittedAt: s.opts.Now(),
	}

	stored, created, err := s.store.SaveSubmission(ctx, sub)
	if err != nil {
		return Submission{}, false, err
	}
	if !created {
		s.metrics.DuplicateSubmissions.Inc()
		s.logger.Info().Str("client_id", c.ID).Msg("duplicate submission ignored")
		return stored, true, nil
	}

	if err := s.store.SetClientStatus(ctx, c.ID, ClientCompleted); err != nil {
		return Submission{}, false, err
	}
	s.metrics.SubmissionsAccepted.Inc()
	s.logger.Info().
		Str("client_id", c.ID).
		Int("score", stored.Score).
		Int("max_score", stored.MaxScore).
		Int("time_taken", stored.TimeTaken).
		Msg("submission recorded")

	s.publish(ctx, ws.GroupAdmins, ws.TypeResultReceived, ws.ResultReceivedPayload{
		ClientID:   stored.ClientID,
		ClientName: stored.ClientName,
		Score:      stored.Score,
		MaxScore:   stored.MaxScore,
		Percentage: stored.Percentage,
		TimeTaken:  stored.TimeTaken,
	})
	return stored, false, nil
}

// Results returns recorded submissions, best first.
func (s *Service) Results(ctx context.Context) ([]Submission, error) {
	return s.store.ListSubmissions(ctx)
}

// Clients returns every participant in join order.
func (s *Service) Clients(ctx context.Context) ([]Client, error) {
	return s.store.ListClients(ctx)
}

func (s *Service) runningSnapshot(ctx context.Context) (Snapshot, error) {
	snap, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if !snap.Active {
		return snap, ErrNotInProgress
	}
	if snap.Ended {
		return snap, ErrSessionEnded
	}
	return snap, nil
}

func (s *Service) lock(ctx context.Context) (func(), error) {
	s.mu.Lock()
	release, err := s.store.Lock(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return func() {
		if err := release(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to release session lock")
		}
		s.mu.Unlock()
	}, nil
}

func (s *Service) publish(ctx context.Context, group, msgType string, payload any) {
	if s.pub == nil {
		return
	}
	msg, err := ws.NewMessage(msgType, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("type", msgType).Msg("failed to build message")
		return
	}
	if err := s.pub.Publish(ctx, group, msg); err != nil {
		s.logger.Warn().Err(err).Str("group", group).Str("type", msgType).Msg("publish failed")
	}
}
