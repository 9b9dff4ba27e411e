package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BTreeMap/MoodMatch/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Defaults for the controller cadence and request budget.
const (
	DefaultStepInterval   = 1500 * time.Millisecond
	DefaultRequestTimeout = 20 * time.Second
	journalTimeout        = 5 * time.Second
)

var (
	// ErrAlreadyStarted is returned by Start on a controller that already accepted a submission.
	ErrAlreadyStarted = errors.New("flow already started")
	// ErrNotStarted is returned by Wait before Start.
	ErrNotStarted = errors.New("flow not started")
	// ErrCancelled is the outcome error of a cancelled flow.
	ErrCancelled = errors.New("flow cancelled")
	// ErrCrisisAnalysis is returned by RequestMatch when asked to match a crisis analysis.
	ErrCrisisAnalysis = errors.New("crisis analysis cannot be sent to peer matching")

	errStopAnimation = errors.New("stop animation")
)

// Policy selects how the progress animation and the network requests are ordered.
type Policy string

const (
	// PolicySequential plays the whole animation before the first request is sent.
	PolicySequential Policy = "sequential"
	// PolicyConcurrent sends requests while the animation plays. A crisis or an error ends the
	// animation early; a result waits for it to finish.
	PolicyConcurrent Policy = "concurrent"
)

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicySequential, PolicyConcurrent:
		return p, nil
	case "":
		return PolicySequential, nil
	}
	return "", fmt.Errorf("unknown animation policy %q", s)
}

// Analyzer turns a submission into an analysis.
type Analyzer interface {
	Analyze(ctx context.Context, sub models.MoodSubmission) (models.AnalysisResult, error)
}

// Matcher finds a peer for an analysis.
type Matcher interface {
	FindMatch(ctx context.Context, userID string, analysis models.AnalysisResult) (models.MatchResult, error)
}

// Journal records terminal outcomes.
type Journal interface {
	RecordOutcome(ctx context.Context, rec models.OutcomeRecord) error
}

// Observer receives the events of one flow. Calls are serialized and never happen after
// Cancel has returned. Observers must not call back into the controller.
type Observer interface {
	OnState(flowID string, state State)
	OnStep(flowID string, step models.FlowStep)
	OnOutcome(out Outcome)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	State   func(flowID string, state State)
	Step    func(flowID string, step models.FlowStep)
	Outcome func(out Outcome)
}

func (f ObserverFuncs) OnState(flowID string, state State) {
	if f.State != nil {
		f.State(flowID, state)
	}
}

func (f ObserverFuncs) OnStep(flowID string, step models.FlowStep) {
	if f.Step != nil {
		f.Step(flowID, step)
	}
}

func (f ObserverFuncs) OnOutcome(out Outcome) {
	if f.Outcome != nil {
		f.Outcome(out)
	}
}

// Outcome is the terminal result of a flow.
type Outcome struct {
	FlowID      string
	Destination models.Destination
	NoMatch     bool
	Result      *ResultHandoff
	Crisis      *CrisisHandoff
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Record builds the journal row for the outcome. Mood text and match details are left out.
func (o Outcome) Record(userID string) models.OutcomeRecord {
	rec := models.OutcomeRecord{
		FlowID:      o.FlowID,
		UserID:      userID,
		Destination: o.Destination,
		StartedAt:   o.StartedAt,
		FinishedAt:  o.FinishedAt,
	}
	if o.Destination == models.DestinationError {
		rec.ErrorKind = models.KindOf(o.Err)
	}
	switch {
	case o.Crisis != nil:
		rec.PrimaryEmotion = o.Crisis.Result.PrimaryEmotion
		rec.UrgencyLevel = o.Crisis.Result.UrgencyLevel.String()
	case o.Result != nil:
		rec.PrimaryEmotion = o.Result.AnalysisResult.PrimaryEmotion
		rec.UrgencyLevel = o.Result.AnalysisResult.UrgencyLevel.String()
		rec.MatchFound = o.Result.Result.HasPeer()
		if o.Result.Result != nil {
			rec.MatchScore = o.Result.Result.MatchScore
		}
	}
	return rec
}

// Opts holds controller configuration.
type Opts struct {
	Policy         Policy
	StepInterval   time.Duration
	RequestTimeout time.Duration
	Steps          []models.StepConfig
	Timer          Timer
	Observer       Observer
	Journal        Journal
}

// Option configures a Controller.
type Option func(*Opts)

// WithPolicy sets the animation policy.
func WithPolicy(p Policy) Option {
	return func(o *Opts) { o.Policy = p }
}

// WithStepInterval sets the delay between progress steps.
func WithStepInterval(d time.Duration) Option {
	return func(o *Opts) { o.StepInterval = d }
}

// WithRequestTimeout bounds each network request.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Opts) { o.RequestTimeout = d }
}

// WithSteps replaces the default progress steps.
func WithSteps(steps []models.StepConfig) Option {
	return func(o *Opts) { o.Steps = steps }
}

// WithTimer sets the timer driving the step cadence. The controller stops it when the flow ends.
func WithTimer(t Timer) Option {
	return func(o *Opts) { o.Timer = t }
}

// WithObserver registers the flow observer.
func WithObserver(obs Observer) Option {
	return func(o *Opts) { o.Observer = obs }
}

// WithJournal records terminal outcomes in j.
func WithJournal(j Journal) Option {
	return func(o *Opts) { o.Journal = j }
}

// Controller runs one submission from input to its terminal state.
type Controller struct {
	analyzer       Analyzer
	matcher        Matcher
	policy         Policy
	interval       time.Duration
	requestTimeout time.Duration
	steps          []models.StepConfig
	timer          Timer
	observer       Observer
	journal        Journal
	id             string

	state     atomic.Int32
	stepIndex atomic.Int32

	// mu serializes observer emission and guards the fields below.
	mu        sync.Mutex
	started   bool
	cancelled bool
	userID    string
	startedAt time.Time
	outcome   Outcome
	cancelCtx context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
}

// NewController creates a controller for a single submission.
func NewController(analyzer Analyzer, matcher Matcher, opts ...Option) *Controller {
	o := Opts{
		Policy:         PolicySequential,
		StepInterval:   DefaultStepInterval,
		RequestTimeout: DefaultRequestTimeout,
		Steps:          models.DefaultSteps(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Timer == nil {
		o.Timer = NewSimpleTimer()
	}
	if o.Observer == nil {
		o.Observer = ObserverFuncs{}
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}

	c := &Controller{
		analyzer:       analyzer,
		matcher:        matcher,
		policy:         o.Policy,
		interval:       o.StepInterval,
		requestTimeout: o.RequestTimeout,
		steps:          o.Steps,
		timer:          o.Timer,
		observer:       o.Observer,
		journal:        o.Journal,
		id:             uuid.NewString(),
		done:           make(chan struct{}),
	}
	c.stepIndex.Store(-1)
	return c
}

// ID is the flow id used in logs and the journal.
func (c *Controller) ID() string { return c.id }

// State is the current state. Safe to call from any goroutine.
func (c *Controller) State() State { return State(c.state.Load()) }

// StepIndex is the index of the last displayed step, or -1 before the first.
func (c *Controller) StepIndex() int { return int(c.stepIndex.Load()) }

// Outcome returns the terminal outcome, or the zero Outcome while the flow is running.
func (c *Controller) Outcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Start validates sub and begins processing it in the background. Invalid input ends the
// flow in StateError before any request is sent. Cancelling ctx cancels the flow.
func (c *Controller) Start(ctx context.Context, sub models.MoodSubmission) error {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return ErrCancelled
	}
	if c.started {
		c.mu.Unlock()
		return models.NewFlowError(models.ErrorKindInvalidInput, "flow.Start", ErrAlreadyStarted)
	}
	c.started = true
	c.userID = sub.UserID
	c.startedAt = time.Now()
	flowCtx, cancel := context.WithCancel(ctx)
	c.cancelCtx = cancel
	c.mu.Unlock()

	if err := sub.Validate(); err != nil {
		cancel()
		c.timer.Stop()
		c.finish(ctx, Outcome{Destination: models.DestinationError, Err: err})
		c.closeDone()
		return err
	}

	slog.Info("Controller.Start", "flow_id", c.id, "user_id", sub.UserID, "policy", c.policy, "text_len", len(sub.Text))
	stopWatch := context.AfterFunc(ctx, c.Cancel)
	go c.run(flowCtx, sub, stopWatch)
	return nil
}

// Wait blocks until the flow reaches a terminal state or ctx is done. The returned error is
// the outcome's error for error and cancelled flows.
func (c *Controller) Wait(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	begun := c.started || c.cancelled
	c.mu.Unlock()
	if !begun {
		return Outcome{}, ErrNotStarted
	}

	select {
	case <-c.done:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	out := c.Outcome()
	return out, out.Err
}

// Run starts the flow and waits for its outcome.
func (c *Controller) Run(ctx context.Context, sub models.MoodSubmission) (Outcome, error) {
	if err := c.Start(ctx, sub); err != nil {
		return c.Outcome(), err
	}
	return c.Wait(context.WithoutCancel(ctx))
}

// Cancel tears the flow down. In-flight requests are aborted, pending steps are dropped and
// no observer or journal call happens once Cancel has returned. It is idempotent and a
// no-op on a finished flow.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.cancelled || c.State().Terminal() {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	from := c.State()
	c.state.Store(int32(StateCancelled))
	c.outcome = Outcome{
		FlowID:      c.id,
		Destination: models.DestinationCancelled,
		Err:         ErrCancelled,
		StartedAt:   c.startedAt,
		FinishedAt:  time.Now(),
	}
	cancel := c.cancelCtx
	started := c.started
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.timer.Stop()
	if !started {
		c.closeDone()
	}
	slog.Info("Controller.Cancel succeeded", "flow_id", c.id, "from", from)
}

// RequestAnalysis sends the submission to the analyzer under the per-request timeout.
func (c *Controller) RequestAnalysis(ctx context.Context, sub models.MoodSubmission) (models.AnalysisResult, error) {
	const op = "flow.RequestAnalysis"
	if err := sub.Validate(); err != nil {
		return models.AnalysisResult{}, err
	}
	rctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	analysis, err := c.analyzer.Analyze(rctx, sub)
	if err != nil {
		return models.AnalysisResult{}, asFlowError(op, err)
	}
	slog.Debug(op+" succeeded", "flow_id", c.id, "urgency", analysis.UrgencyLevel, "crisis", analysis.CrisisDetected)
	return analysis, nil
}

// RequestMatch asks the matcher for a peer. Crisis analyses are refused.
func (c *Controller) RequestMatch(ctx context.Context, userID string, analysis models.AnalysisResult) (models.MatchResult, error) {
	const op = "flow.RequestMatch"
	if analysis.CrisisDetected {
		return models.MatchResult{}, ErrCrisisAnalysis
	}
	rctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	match, err := c.matcher.FindMatch(rctx, userID, analysis)
	if err != nil {
		return models.MatchResult{}, asFlowError(op, err)
	}
	slog.Debug(op+" succeeded", "flow_id", c.id, "match_found", match.MatchFound, "score", match.MatchScore)
	return match, nil
}

func (c *Controller) run(ctx context.Context, sub models.MoodSubmission, stopWatch func() bool) {
	defer c.closeDone()
	defer stopWatch()
	defer c.timer.Stop()

	if !c.transition(StateAnimating) {
		return
	}

	var out Outcome
	if c.policy == PolicyConcurrent {
		out = c.runConcurrent(ctx, sub)
	} else {
		out = c.runSequential(ctx, sub)
	}

	// flowCtx is only done through Cancel or the caller's context.
	if ctx.Err() != nil {
		c.Cancel()
		return
	}
	c.finish(ctx, out)
	c.mu.Lock()
	c.cancelCtx()
	c.mu.Unlock()
}

func (c *Controller) runSequential(ctx context.Context, sub models.MoodSubmission) Outcome {
	if err := c.animate(ctx); err != nil {
		return Outcome{Destination: models.DestinationCancelled, Err: ErrCancelled}
	}
	return c.process(ctx, sub)
}

func (c *Controller) runConcurrent(ctx context.Context, sub models.MoodSubmission) Outcome {
	g, gctx := errgroup.WithContext(ctx)
	var out Outcome
	g.Go(func() error {
		out = c.process(ctx, sub)
		if out.Destination != models.DestinationResult {
			return errStopAnimation
		}
		return nil
	})
	g.Go(func() error {
		return c.animate(gctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errStopAnimation) {
		slog.Debug("Controller.runConcurrent animation stopped", "flow_id", c.id, "error", err)
	}
	return out
}

// process runs analysis then matching and returns the unapplied terminal outcome.
func (c *Controller) process(ctx context.Context, sub models.MoodSubmission) Outcome {
	cancelled := Outcome{Destination: models.DestinationCancelled, Err: ErrCancelled}
	if !c.transition(StateAnalyzing) {
		return cancelled
	}
	analysis, err := c.RequestAnalysis(ctx, sub)
	if err != nil {
		return Outcome{Destination: models.DestinationError, Err: err}
	}
	if ResolveDestination(analysis, nil).Destination == models.DestinationCrisis {
		return Outcome{Destination: models.DestinationCrisis, Crisis: &CrisisHandoff{Result: analysis}}
	}

	if !c.transition(StateMatching) {
		return cancelled
	}
	match, err := c.RequestMatch(ctx, sub.UserID, analysis)
	if err != nil {
		return Outcome{Destination: models.DestinationError, Err: err}
	}
	route := ResolveDestination(analysis, &match)
	return Outcome{
		Destination: route.Destination,
		NoMatch:     route.NoMatch,
		Result:      &ResultHandoff{Result: &match, MoodText: sub.Text, AnalysisResult: analysis},
	}
}

// animate emits each step in order, one interval apart.
func (c *Controller) animate(ctx context.Context) error {
	seq := NewStepSequence(c.steps)
	for {
		step, ok := seq.Next()
		if !ok {
			return nil
		}
		if !c.emitStep(step) {
			return ErrCancelled
		}
		if seq.Remaining() == 0 {
			return nil
		}

		tick := make(chan struct{})
		if _, err := c.timer.ScheduleAfter(c.interval, func() { close(tick) }); err != nil {
			return err
		}
		select {
		case <-tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) transition(to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return false
	}
	from := c.State()
	if !CanTransition(from, to) {
		slog.Error("Controller.transition rejected", "flow_id", c.id, "from", from, "to", to)
		return false
	}
	c.state.Store(int32(to))
	slog.Debug("Controller.transition", "flow_id", c.id, "from", from, "to", to)
	c.observer.OnState(c.id, to)
	return true
}

func (c *Controller) emitStep(step models.FlowStep) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled || c.State().Terminal() {
		return false
	}
	if int32(step.Index) <= c.stepIndex.Load() {
		return false
	}
	c.stepIndex.Store(int32(step.Index))
	c.observer.OnStep(c.id, step)
	return true
}

// finish applies a terminal outcome, journals it and notifies the observer.
func (c *Controller) finish(ctx context.Context, out Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}

	to := stateFor(out.Destination)
	from := c.State()
	if !CanTransition(from, to) {
		slog.Error("Controller.finish unexpected transition", "flow_id", c.id, "from", from, "to", to)
	}
	out.FlowID = c.id
	out.StartedAt = c.startedAt
	out.FinishedAt = time.Now()
	c.outcome = out
	c.state.Store(int32(to))

	c.record(ctx, out)
	if out.Err != nil {
		slog.Warn("Controller flow failed", "flow_id", c.id, "kind", models.KindOf(out.Err), "error", out.Err)
	}
	slog.Info("Controller flow finished", "flow_id", c.id, "destination", out.Destination, "duration", out.FinishedAt.Sub(out.StartedAt))
	c.observer.OnState(c.id, to)
	c.observer.OnOutcome(out)
}

func (c *Controller) record(ctx context.Context, out Outcome) {
	if c.journal == nil {
		return
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := c.journal.RecordOutcome(jctx, out.Record(c.userID)); err != nil {
		slog.Error("Controller journal write failed", "flow_id", c.id, "error", err)
	}
}

func (c *Controller) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func stateFor(d models.Destination) State {
	switch d {
	case models.DestinationCrisis:
		return StateCrisis
	case models.DestinationResult:
		return StateResult
	case models.DestinationCancelled:
		return StateCancelled
	}
	return StateError
}

func asFlowError(op string, err error) error {
	var fe *models.FlowError
	if errors.As(err, &fe) {
		return err
	}
	return models.NewFlowError(models.ErrorKindNetwork, op, err)
}
