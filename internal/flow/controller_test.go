package flow

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BTreeMap/MoodMatch/internal/models"
	"github.com/BTreeMap/MoodMatch/internal/moodapi"
	"github.com/BTreeMap/MoodMatch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type analyzerFunc func(ctx context.Context, sub models.MoodSubmission) (models.AnalysisResult, error)

func (f analyzerFunc) Analyze(ctx context.Context, sub models.MoodSubmission) (models.AnalysisResult, error) {
	return f(ctx, sub)
}

type matcherFunc func(ctx context.Context, userID string, analysis models.AnalysisResult) (models.MatchResult, error)

func (f matcherFunc) FindMatch(ctx context.Context, userID string, analysis models.AnalysisResult) (models.MatchResult, error) {
	return f(ctx, userID, analysis)
}

// recorder captures every observer event along with a global call counter.
type recorder struct {
	mu       sync.Mutex
	events   []string
	states   []State
	steps    []models.FlowStep
	outcomes []Outcome
	calls    atomic.Int64
	onState  func(State)
}

func (r *recorder) OnState(_ string, s State) {
	r.calls.Add(1)
	r.mu.Lock()
	r.states = append(r.states, s)
	r.events = append(r.events, "state:"+s.String())
	hook := r.onState
	r.mu.Unlock()
	if hook != nil {
		hook(s)
	}
}

func (r *recorder) OnStep(_ string, step models.FlowStep) {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
	r.events = append(r.events, "step:"+step.Agent)
}

func (r *recorder) OnOutcome(out Outcome) {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, out)
	r.events = append(r.events, "outcome:"+string(out.Destination))
}

func (r *recorder) snapshot() ([]State, []models.FlowStep, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...), append([]models.FlowStep(nil), r.steps...), append([]string(nil), r.events...)
}

type spyJournal struct {
	mu      sync.Mutex
	records []models.OutcomeRecord
}

func (j *spyJournal) RecordOutcome(_ context.Context, rec models.OutcomeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return nil
}

func (j *spyJournal) all() []models.OutcomeRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.OutcomeRecord(nil), j.records...)
}

func newBackendController(b *testutil.StubBackend, rec *recorder, j *spyJournal, opts ...Option) *Controller {
	api := moodapi.NewClient(moodapi.WithBaseURL(b.URL()))
	opts = append([]Option{
		WithStepInterval(time.Millisecond),
		WithRequestTimeout(2 * time.Second),
		WithObserver(rec),
		WithJournal(j),
	}, opts...)
	return NewController(api, api, opts...)
}

func TestController_StressedStudentGetsMatch(t *testing.T) {
	b := testutil.NewStubBackend(t).
		OnAnalyze(testutil.Reply{Body: testutil.AnalysisBody(testutil.StressedAnalysis())}).
		OnFindMatch(testutil.Reply{Body: testutil.FoundMatch()})
	rec, j := &recorder{}, &spyJournal{}
	c := newBackendController(b, rec, j)

	sub := models.NewMoodSubmission("student_ananya", "I'm so stressed about finals")
	out, err := c.Run(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, models.DestinationResult, out.Destination)
	assert.False(t, out.NoMatch)
	require.NotNil(t, out.Result)
	assert.Equal(t, sub.Text, out.Result.MoodText)
	assert.Equal(t, "stressed", out.Result.AnalysisResult.PrimaryEmotion)
	assert.Equal(t, "Jake", out.Result.Result.MatchedPeer.Name)
	assert.Equal(t, 87, out.Result.Result.MatchScore)
	assert.Nil(t, out.Crisis)
	assert.Equal(t, c.ID(), out.FlowID)
	assert.Equal(t, StateResult, c.State())

	states, steps, _ := rec.snapshot()
	assert.Equal(t, []State{StateAnimating, StateAnalyzing, StateMatching, StateResult}, states)
	require.Len(t, steps, 4)
	for i, step := range steps {
		assert.Equal(t, i, step.Index)
	}
	assert.Equal(t, 3, c.StepIndex())

	assert.Equal(t, 1, b.AnalyzeCalls())
	assert.Equal(t, 1, b.MatchCalls())
	matchReq := b.Requests(testutil.FindMatchPath)
	require.Len(t, matchReq, 1)
	assert.Equal(t, "student_ananya", matchReq[0]["user_id"])

	records := j.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.DestinationResult, records[0].Destination)
	assert.True(t, records[0].MatchFound)
	assert.Equal(t, 87, records[0].MatchScore)
	assert.Equal(t, "MODERATE", records[0].UrgencyLevel)
	assert.Equal(t, "student_ananya", records[0].UserID)
}

func TestController_NoMatchStillRoutesToResult(t *testing.T) {
	b := testutil.NewStubBackend(t).
		OnAnalyze(testutil.Reply{Body: testutil.AnalysisBody(testutil.StressedAnalysis())}).
		OnFindMatch(testutil.Reply{Body: testutil.NoMatch()})
	c := newBackendController(b, &recorder{}, &spyJournal{})

	out, err := c.Run(context.Background(), models.NewMoodSubmission("u", "lonely this weekend"))
	require.NoError(t, err)
	assert.Equal(t, models.DestinationResult, out.Destination)
	assert.True(t, out.NoMatch)
}

func TestController_CrisisNeverReachesMatcher(t *testing.T) {
	b := testutil.NewStubBackend(t).
		OnAnalyze(testutil.Reply{Body: testutil.AnalysisBody(testutil.CrisisAnalysis())}).
		OnFindMatch(testutil.Reply{Body: testutil.FoundMatch()})
	rec, j := &recorder{}, &spyJournal{}
	c := newBackendController(b, rec, j)

	out, err := c.Run(context.Background(), models.NewMoodSubmission("u", "I don't see the point anymore"))
	require.NoError(t, err)

	assert.Equal(t, models.DestinationCrisis, out.Destination)
	require.NotNil(t, out.Crisis)
	assert.True(t, out.Crisis.Result.CrisisDetected)
	assert.Nil(t, out.Result)
	assert.Zero(t, b.MatchCalls())

	states, _, _ := rec.snapshot()
	assert.Equal(t, []State{StateAnimating, StateAnalyzing, StateCrisis}, states)

	records := j.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.DestinationCrisis, records[0].Destination)
	assert.False(t, records[0].MatchFound)
}

func TestController_BackendFailureRoutesToError(t *testing.T) {
	b := testutil.NewStubBackend(t).
		OnAnalyze(testutil.Reply{Status: http.StatusInternalServerError, Body: map[string]string{"detail": "boom"}})
	rec, j := &recorder{}, &spyJournal{}
	c := newBackendController(b, rec, j)

	out, err := c.Run(context.Background(), models.NewMoodSubmission("u", "homesick"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNetwork)
	assert.Equal(t, models.DestinationError, out.Destination)
	assert.Equal(t, StateError, c.State())
	assert.Zero(t, b.MatchCalls())

	records := j.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.ErrorKindNetwork, records[0].ErrorKind)
}

func TestController_MalformedMatchRoutesToError(t *testing.T) {
	b := testutil.NewStubBackend(t).
		OnAnalyze(testutil.Reply{Body: testutil.AnalysisBody(testutil.StressedAnalysis())}).
		OnFindMatch(testutil.Reply{Body: `{"match_score": 10}`})
	c := newBackendController(b, &recorder{}, &spyJournal{})

	out, err := c.Run(context.Background(), models.NewMoodSubmission("u", "homesick"))
	assert.ErrorIs(t, err, models.ErrMalformedResponse)
	assert.Equal(t, models.DestinationError, out.Destination)
}

func TestController_EmptyInputFailsFast(t *testing.T) {
	b := testutil.NewStubBackend(t).
		OnAnalyze(testutil.Reply{Body: testutil.AnalysisBody(testutil.StressedAnalysis())})
	rec, j := &recorder{}, &spyJournal{}
	c := newBackendController(b, rec, j)

	err := c.Start(context.Background(), models.NewMoodSubmission("u", "   "))
	require.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Equal(t, StateError, c.State())

	out, werr := c.Wait(context.Background())
	assert.ErrorIs(t, werr, models.ErrInvalidInput)
	assert.Equal(t, models.DestinationError, out.Destination)
	assert.Zero(t, b.AnalyzeCalls())

	_, steps, _ := rec.snapshot()
	assert.Empty(t, steps)
	records := j.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.ErrorKindInvalidInput, records[0].ErrorKind)
}

func TestController_CancelDuringAnalysisStopsAllWrites(t *testing.T) {
	b := testutil.NewStubBackend(t).
		OnAnalyze(testutil.Reply{Delay: 2 * time.Second, Body: testutil.AnalysisBody(testutil.StressedAnalysis())}).
		OnFindMatch(testutil.Reply{Body: testutil.FoundMatch()})
	analyzing := make(chan struct{})
	var once sync.Once
	rec := &recorder{onState: func(s State) {
		if s == StateAnalyzing {
			once.Do(func() { close(analyzing) })
		}
	}}
	j := &spyJournal{}
	c := newBackendController(b, rec, j)

	require.NoError(t, c.Start(context.Background(), models.NewMoodSubmission("u", "stressed")))
	select {
	case <-analyzing:
	case <-time.After(2 * time.Second):
		t.Fatal("flow never reached analyzing")
	}
	require.Eventually(t, func() bool { return b.AnalyzeCalls() == 1 }, time.Second, time.Millisecond)

	c.Cancel()
	callsAtCancel := rec.calls.Load()
	assert.Equal(t, StateCancelled, c.State())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := c.Wait(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, models.DestinationCancelled, out.Destination)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, callsAtCancel, rec.calls.Load(), "observer called after cancel")
	assert.Empty(t, j.all(), "cancelled flows are not journaled")
	assert.Zero(t, b.MatchCalls())
	assert.Equal(t, StateCancelled, c.State())

	// Idempotent.
	c.Cancel()
	c.Cancel()
	assert.Equal(t, callsAtCancel, rec.calls.Load())
}

func TestController_CancelDuringAnimation(t *testing.T) {
	var analyzeCalls atomic.Int32
	analyzer := analyzerFunc(func(context.Context, models.MoodSubmission) (models.AnalysisResult, error) {
		analyzeCalls.Add(1)
		return models.AnalysisResult{PrimaryEmotion: "calm", UrgencyLevel: models.UrgencyLow}, nil
	})
	rec := &recorder{}
	c := NewController(analyzer, nil, WithStepInterval(time.Hour), WithObserver(rec))

	require.NoError(t, c.Start(context.Background(), models.NewMoodSubmission("u", "fine")))
	require.Eventually(t, func() bool { return c.StepIndex() == 0 }, time.Second, time.Millisecond)

	c.Cancel()
	_, err := c.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, analyzeCalls.Load(), "sequential policy sends nothing before the animation ends")
	assert.Equal(t, 0, c.StepIndex())
}

func TestController_ParentContextCancels(t *testing.T) {
	blocked := analyzerFunc(func(ctx context.Context, _ models.MoodSubmission) (models.AnalysisResult, error) {
		<-ctx.Done()
		return models.AnalysisResult{}, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	c := NewController(blocked, nil, WithSteps(nil))

	require.NoError(t, c.Start(ctx, models.NewMoodSubmission("u", "stressed")))
	require.Eventually(t, func() bool { return c.State() == StateAnalyzing }, time.Second, time.Millisecond)
	cancel()

	out, err := c.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, models.DestinationCancelled, out.Destination)
}

func TestController_RequestTimeout(t *testing.T) {
	blocked := analyzerFunc(func(ctx context.Context, _ models.MoodSubmission) (models.AnalysisResult, error) {
		<-ctx.Done()
		return models.AnalysisResult{}, ctx.Err()
	})
	c := NewController(blocked, nil, WithSteps(nil), WithRequestTimeout(20*time.Millisecond))

	out, err := c.Run(context.Background(), models.NewMoodSubmission("u", "stressed"))
	assert.ErrorIs(t, err, models.ErrNetwork)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.DestinationError, out.Destination)
}

func TestController_ConcurrentCrisisEndsAnimationEarly(t *testing.T) {
	crisis := analyzerFunc(func(context.Context, models.MoodSubmission) (models.AnalysisResult, error) {
		return models.AnalysisResult{PrimaryEmotion: "hopeless", UrgencyLevel: models.UrgencyCrisis, CrisisDetected: true}, nil
	})
	var matchCalls atomic.Int32
	matcher := matcherFunc(func(context.Context, string, models.AnalysisResult) (models.MatchResult, error) {
		matchCalls.Add(1)
		return models.MatchResult{}, nil
	})
	rec := &recorder{}
	c := NewController(crisis, matcher, WithPolicy(PolicyConcurrent), WithStepInterval(time.Hour), WithObserver(rec))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := c.Run(ctx, models.NewMoodSubmission("u", "I can't go on"))
	require.NoError(t, err)
	assert.Equal(t, models.DestinationCrisis, out.Destination)
	assert.Zero(t, matchCalls.Load())

	_, steps, _ := rec.snapshot()
	assert.Len(t, steps, 1)
}

func TestController_ConcurrentResultWaitsForAnimation(t *testing.T) {
	analyzer := analyzerFunc(func(context.Context, models.MoodSubmission) (models.AnalysisResult, error) {
		return models.AnalysisResult{PrimaryEmotion: "stressed", UrgencyLevel: models.UrgencyModerate}, nil
	})
	matcher := matcherFunc(func(context.Context, string, models.AnalysisResult) (models.MatchResult, error) {
		return models.MatchResult{MatchFound: true, MatchScore: 70, MatchedPeer: &models.MatchedPeer{Name: "Maya"}}, nil
	})
	rec := &recorder{}
	c := NewController(analyzer, matcher, WithPolicy(PolicyConcurrent), WithStepInterval(5*time.Millisecond), WithObserver(rec))

	out, err := c.Run(context.Background(), models.NewMoodSubmission("u", "stressed"))
	require.NoError(t, err)
	assert.Equal(t, models.DestinationResult, out.Destination)

	_, steps, events := rec.snapshot()
	require.Len(t, steps, 4)
	assert.Equal(t, "outcome:result", events[len(events)-1])
	assert.Equal(t, "state:result", events[len(events)-2])
	assert.Equal(t, "step:ConversationFacilitator", events[len(events)-3])
}

func TestController_SecondStartRejected(t *testing.T) {
	analyzer := analyzerFunc(func(context.Context, models.MoodSubmission) (models.AnalysisResult, error) {
		return models.AnalysisResult{PrimaryEmotion: "hopeless", UrgencyLevel: models.UrgencyCrisis, CrisisDetected: true}, nil
	})
	c := NewController(analyzer, nil, WithSteps(nil))
	sub := models.NewMoodSubmission("u", "help")

	require.NoError(t, c.Start(context.Background(), sub))
	err := c.Start(context.Background(), sub)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = c.Wait(context.Background())
	require.NoError(t, err)

	// Cancel after the flow finished changes nothing.
	c.Cancel()
	assert.Equal(t, StateCrisis, c.State())
	assert.Equal(t, models.DestinationCrisis, c.Outcome().Destination)
}

func TestController_WaitBeforeStart(t *testing.T) {
	c := NewController(nil, nil)
	_, err := c.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestController_CancelBeforeStart(t *testing.T) {
	c := NewController(nil, nil)
	c.Cancel()
	assert.ErrorIs(t, c.Start(context.Background(), models.NewMoodSubmission("u", "hi")), ErrCancelled)
	out, err := c.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, models.DestinationCancelled, out.Destination)
}

func TestController_WaitHonoursContext(t *testing.T) {
	blocked := analyzerFunc(func(ctx context.Context, _ models.MoodSubmission) (models.AnalysisResult, error) {
		<-ctx.Done()
		return models.AnalysisResult{}, ctx.Err()
	})
	c := NewController(blocked, nil, WithSteps(nil))
	require.NoError(t, c.Start(context.Background(), models.NewMoodSubmission("u", "hi")))
	defer c.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestController_RequestMatchRefusesCrisis(t *testing.T) {
	var calls atomic.Int32
	matcher := matcherFunc(func(context.Context, string, models.AnalysisResult) (models.MatchResult, error) {
		calls.Add(1)
		return models.MatchResult{}, nil
	})
	c := NewController(nil, matcher)
	_, err := c.RequestMatch(context.Background(), "u", models.AnalysisResult{CrisisDetected: true})
	assert.ErrorIs(t, err, ErrCrisisAnalysis)
	assert.Zero(t, calls.Load())
}

func TestController_RequestAnalysisWrapsPlainErrors(t *testing.T) {
	analyzer := analyzerFunc(func(context.Context, models.MoodSubmission) (models.AnalysisResult, error) {
		return models.AnalysisResult{}, errors.New("connection reset")
	})
	c := NewController(analyzer, nil)
	_, err := c.RequestAnalysis(context.Background(), models.NewMoodSubmission("u", "hi"))
	assert.ErrorIs(t, err, models.ErrNetwork)

	_, err = c.RequestAnalysis(context.Background(), models.NewMoodSubmission("", "hi"))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestOutcomeRecord_OmitsPayload(t *testing.T) {
	now := time.Now()
	out := Outcome{
		FlowID:      "f1",
		Destination: models.DestinationResult,
		Result: &ResultHandoff{
			Result:         &models.MatchResult{MatchFound: true, MatchScore: 91, MatchedPeer: &models.MatchedPeer{Name: "Jake"}},
			MoodText:       "private words",
			AnalysisResult: models.AnalysisResult{PrimaryEmotion: "anxious", UrgencyLevel: models.UrgencyHigh},
		},
		StartedAt:  now.Add(-time.Second),
		FinishedAt: now,
	}
	rec := out.Record("student_x")
	assert.Equal(t, models.OutcomeRecord{
		FlowID:         "f1",
		UserID:         "student_x",
		Destination:    models.DestinationResult,
		PrimaryEmotion: "anxious",
		UrgencyLevel:   "HIGH",
		MatchFound:     true,
		MatchScore:     91,
		StartedAt:      out.StartedAt,
		FinishedAt:     out.FinishedAt,
	}, rec)
	assert.Equal(t, time.Second, rec.Duration())
}
