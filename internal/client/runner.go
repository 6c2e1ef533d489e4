package client

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/gokatarajesh/live-quiz/internal/quiz"
	"github.com/gokatarajesh/live-quiz/internal/quiz/scoring"
)

const (
	defaultPollInterval    = 2 * time.Second
	defaultQuestionSeconds = 30
	defaultRetryBase       = 500 * time.Millisecond
	defaultRetryMax        = 10 * time.Second
)

// Options tunes a Runner. Zero values take defaults.
type Options struct {
	PollInterval    time.Duration
	QuestionSeconds int
	RetryBase       time.Duration
	RetryMax        time.Duration
	// MaxAttempts bounds result delivery; 0 retries until the run ends.
	MaxAttempts int
	Scheduler   Scheduler
	Now         func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.QuestionSeconds <= 0 {
		o.QuestionSeconds = defaultQuestionSeconds
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	if o.RetryMax <= 0 {
		o.RetryMax = defaultRetryMax
	}
	if o.Scheduler == nil {
		o.Scheduler = TickerScheduler{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// SubmitOutcome is returned to an explicit submit request.
type SubmitOutcome struct {
	Result    scoring.Result
	Submitted bool
	Declined  bool
}

// Runner drives a State against an Authority. Everything that touches the
// state runs on the single goroutine started by Run; timer ticks, push
// events, poll results and user actions are all queued onto it.
type Runner struct {
	auth   Authority
	pres   Presenter
	opts   Options
	logger zerolog.Logger

	queue chan func()
	done  chan struct{}

	// owned by the loop
	ctx           context.Context
	state         *State
	timer         *QuestionTimer
	clientID      string
	bank          *quiz.Bank
	conn          ConnectionStatus
	connecting    bool
	polling       bool
	// epoch moves on every join and push event; a status reply issued
	// under an older epoch may predate them and is dropped.
	epoch         uint64
	cancelDeliver context.CancelFunc
	deliveryGen   uint64
}

// NewRunner wires a runner. Call Run to start it.
func NewRunner(auth Authority, pres Presenter, opts Options, logger zerolog.Logger) *Runner {
	if pres == nil {
		pres = NopPresenter{}
	}
	r := &Runner{
		auth:   auth,
		pres:   pres,
		opts:   opts.withDefaults(),
		logger: logger.With().Str("component", "session_runner").Logger(),
		queue:  make(chan func(), 64),
		done:   make(chan struct{}),
		state:  NewState(),
		conn:   StatusConnecting,
	}
	r.timer = NewQuestionTimer(r.opts.Scheduler, r.post, r.pres.OnTimerTick, r.onTimerExpired)
	return r
}

// Run joins the session and processes events until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	r.ctx = ctx

	stopPoll := r.opts.Scheduler.Every(r.opts.PollInterval, func() { r.post(r.poll) })
	defer stopPoll()
	defer r.timer.Stop()

	r.pres.OnConnectionStatus(r.conn)
	r.startConnect()

	events := r.auth.Events()
	for {
		select {
		case <-ctx.Done():
			r.stopDelivery()
			return ctx.Err()
		case fn := <-r.queue:
			fn()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.handleEvent(ev)
		}
	}
}

// SelectOption records an answer for the current question.
func (r *Runner) SelectOption(ctx context.Context, option int) error {
	var err error
	if callErr := r.call(ctx, func() { err = r.state.SelectOption(option) }); callErr != nil {
		return callErr
	}
	return err
}

// RequestSubmit is the explicit user submit. When questions are unanswered
// the presenter is asked to confirm; a refusal leaves everything untouched.
func (r *Runner) RequestSubmit(ctx context.Context) (SubmitOutcome, error) {
	var (
		out SubmitOutcome
		err error
	)
	if callErr := r.call(ctx, func() { out, err = r.requestSubmit() }); callErr != nil {
		return SubmitOutcome{}, callErr
	}
	return out, err
}

func (r *Runner) requestSubmit() (SubmitOutcome, error) {
	switch r.state.Phase() {
	case PhaseNotStarted:
		return SubmitOutcome{}, ErrNotStarted
	case PhaseSubmitted:
		res, _ := r.state.Result()
		return SubmitOutcome{Result: res, Submitted: true}, nil
	}

	if n := r.state.UnansweredCount(); n > 0 && !r.pres.OnConfirmationRequired(n) {
		return SubmitOutcome{Declined: true}, nil
	}
	res, err := r.submit()
	if err != nil {
		return SubmitOutcome{}, err
	}
	return SubmitOutcome{Result: res, Submitted: true}, nil
}

// post queues fn onto the loop. It gives up once the loop has exited.
func (r *Runner) post(fn func()) {
	select {
	case r.queue <- fn:
	case <-r.done:
	}
}

func (r *Runner) call(ctx context.Context, fn func()) error {
	reply := make(chan struct{})
	select {
	case r.queue <- func() { fn(); close(reply) }:
	case <-r.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-r.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) setConnection(status ConnectionStatus) {
	if r.conn == status {
		return
	}
	r.conn = status
	r.pres.OnConnectionStatus(status)
}

func (r *Runner) startConnect() {
	if r.connecting {
		return
	}
	r.connecting = true
	ctx := r.ctx
	go func() {
		info, err := r.auth.Connect(ctx)
		r.post(func() { r.handleJoin(info, err) })
	}()
}

func (r *Runner) handleJoin(info JoinInfo, err error) {
	r.connecting = false
	if err != nil {
		r.logger.Warn().Err(err).Msg("join failed, will retry")
		r.setConnection(StatusDisconnected)
		return
	}

	r.epoch++
	r.clientID = info.ClientID
	if info.Bank != nil {
		r.bank = info.Bank
	}
	r.logger.Info().Str("client_id", info.ClientID).Int("total_clients", info.TotalClients).Msg("joined session")
	r.setConnection(StatusConnected)

	if info.SessionActive {
		r.beginSession(r.bank)
		if info.CurrentIndex != nil {
			r.advance(*info.CurrentIndex)
		}
	}
}

// poll is the fallback path when pushes are missed; it also retries joins.
func (r *Runner) poll() {
	if r.clientID == "" {
		r.startConnect()
		return
	}
	if r.polling {
		return
	}
	r.polling = true
	ctx, epoch := r.ctx, r.epoch
	go func() {
		st, err := r.auth.PollStatus(ctx)
		r.post(func() { r.handleStatus(epoch, st, err) })
	}()
}

func (r *Runner) handleStatus(epoch uint64, st Status, err error) {
	r.polling = false
	if err != nil {
		r.logger.Debug().Err(err).Msg("status poll failed")
		r.setConnection(StatusDisconnected)
		return
	}
	r.setConnection(StatusConnected)
	if epoch != r.epoch {
		r.logger.Debug().Uint64("poll_epoch", epoch).Uint64("epoch", r.epoch).Msg("dropping stale status")
		return
	}

	switch {
	case !st.SessionActive:
		if r.state.Phase() != PhaseNotStarted {
			r.handleReset()
		}
	case st.Ended:
		r.forceSubmit()
	default:
		if r.state.Phase() == PhaseNotStarted && r.bank != nil {
			r.beginSession(r.bank)
		}
		if st.CurrentIndex != nil {
			r.advance(*st.CurrentIndex)
		}
	}
}

func (r *Runner) handleEvent(ev Event) {
	r.logger.Debug().Str("event", ev.Kind.String()).Int("index", ev.Index).Msg("authority event")
	r.epoch++
	switch ev.Kind {
	case EventSessionStarted:
		if ev.Bank != nil {
			r.bank = ev.Bank
		}
		r.beginSession(r.bank)
	case EventQuestionIndexChanged:
		if r.state.Phase() == PhaseNotStarted && r.bank != nil {
			r.beginSession(r.bank)
		}
		r.advance(ev.Index)
	case EventSessionReset:
		r.handleReset()
	case EventSessionEnded:
		r.forceSubmit()
	}
}

func (r *Runner) beginSession(bank *quiz.Bank) {
	if r.state.Phase() != PhaseNotStarted {
		return
	}
	if err := r.state.Begin(bank, r.opts.Now()); err != nil {
		r.logger.Error().Err(err).Msg("cannot start session")
		r.pres.OnInitError(err)
		return
	}
	r.enterQuestion()
}

func (r *Runner) advance(index int) {
	if _, changed := r.state.AdvanceTo(index); changed {
		r.enterQuestion()
	}
}

func (r *Runner) enterQuestion() {
	q, prior, ok := r.state.CurrentQuestion()
	if !ok {
		return
	}
	limit := r.state.Bank().QuestionSeconds(r.opts.QuestionSeconds)
	r.pres.OnQuestionChanged(r.state.Index(), q, prior)
	r.pres.OnUnlocked()
	r.pres.OnTimerTick(limit)
	r.timer.Restart(limit)
}

func (r *Runner) onTimerExpired() {
	if !r.state.TimerExpired() {
		return
	}
	r.pres.OnLocked()
	if !r.state.IsLastQuestion() {
		return
	}
	if r.state.AllAnswered() {
		_, _ = r.submit()
		return
	}
	if r.pres.OnConfirmationRequired(r.state.UnansweredCount()) {
		_, _ = r.submit()
	}
}

func (r *Runner) forceSubmit() {
	if r.state.Phase() != PhaseInProgress {
		return
	}
	_, _ = r.submit()
}

// submit scores once and hands the result to both sinks. Repeated calls
// return the cached result without reporting it again.
func (r *Runner) submit() (scoring.Result, error) {
	res, fresh, err := r.state.Submit(r.opts.Now())
	if err != nil {
		return scoring.Result{}, err
	}
	r.timer.Stop()
	if !fresh {
		return res, nil
	}
	r.logger.Info().Int("score", res.Score).Int("max_score", res.MaxScore).Int("percentage", res.Percentage).Msg("session submitted")
	r.pres.OnResults(res)
	r.startDelivery(res)
	return res, nil
}

func (r *Runner) startDelivery(res scoring.Result) {
	ctx, cancel := context.WithCancel(r.ctx)
	r.cancelDeliver = cancel
	r.deliveryGen++
	gen := r.deliveryGen
	clientID := r.clientID
	go func() {
		err := r.deliver(ctx, clientID, res)
		r.post(func() { r.handleDelivered(gen, err) })
	}()
}

// deliver sends the cached result, backing off between transient failures.
func (r *Runner) deliver(ctx context.Context, clientID string, res scoring.Result) error {
	backoff := retry.NewExponential(r.opts.RetryBase)
	backoff = retry.WithCappedDuration(r.opts.RetryMax, backoff)
	if r.opts.MaxAttempts > 0 {
		backoff = retry.WithMaxRetries(uint64(r.opts.MaxAttempts-1), backoff)
	}

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := r.auth.SubmitResult(ctx, clientID, res)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRejected) {
			return err
		}
		r.logger.Warn().Err(err).Int("attempt", attempt).Msg("result delivery failed, retrying")
		r.post(func() { r.setConnection(StatusDisconnected) })
		return retry.RetryableError(err)
	})
}

func (r *Runner) handleDelivered(gen uint64, err error) {
	// superseded by a reset
	if gen != r.deliveryGen || r.cancelDeliver == nil {
		return
	}
	r.cancelDeliver()
	r.cancelDeliver = nil
	if err != nil {
		r.logger.Error().Err(err).Msg("result delivery abandoned")
		r.pres.OnDelivery(err)
		return
	}
	r.setConnection(StatusConnected)
	r.pres.OnDelivery(nil)
}

func (r *Runner) handleReset() {
	r.stopDelivery()
	r.timer.Stop()
	r.state.Reset()
	r.pres.OnSessionReset()
}

func (r *Runner) stopDelivery() {
	r.deliveryGen++
	if r.cancelDeliver != nil {
		r.cancelDeliver()
		r.cancelDeliver = nil
	}
}
