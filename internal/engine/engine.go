// Package engine implements the tutoring engine: it runs practice sessions
// over a fixed set of target expressions, evaluates learner turns against
// them, and drives the Active → Complete session state machine.
//
// The engine is the sole writer of session state. Turn evaluation is pure
// in-memory computation; the persistence layer and the dialogue generator are
// collaborators whose failures never fail a turn.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	mathrand "math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/phraseloop/phraseloop/internal/dialogue"
	"github.com/phraseloop/phraseloop/internal/expression"
	"github.com/phraseloop/phraseloop/internal/observe"
	"github.com/phraseloop/phraseloop/internal/session"
	"github.com/phraseloop/phraseloop/internal/similarity"
)

var (
	// ErrInvalidInput is returned for empty utterances, empty practice
	// sets, duplicate or unknown expression IDs.
	ErrInvalidInput = errors.New("engine: invalid input")

	// ErrSessionComplete is returned when a turn is submitted to a session
	// that has already finished. Completion is one-way; the caller should
	// start a new session instead.
	ErrSessionComplete = errors.New("engine: session already complete")
)

// Default classification thresholds for the similarity score.
const (
	DefaultCorrectThreshold = 0.8
	DefaultCloseThreshold   = 0.6
)

// Outcome classifies one evaluated turn.
type Outcome string

const (
	// OutcomeCorrect marks a turn that completed an expression with a
	// correct usage.
	OutcomeCorrect Outcome = "correct"

	// OutcomeAlreadyCompleted marks a correct usage of an expression that
	// was already completed earlier in the session. Attempts are counted
	// but the completion state does not change.
	OutcomeAlreadyCompleted Outcome = "already_completed"

	// OutcomeClose marks a near miss. Nothing is mutated; the learner is
	// asked to try again.
	OutcomeClose Outcome = "close"

	// OutcomeIncorrect marks a miss. The fail-forward policy completes the
	// first incomplete expression as an incorrect usage so that every
	// session terminates in a bounded number of turns.
	OutcomeIncorrect Outcome = "incorrect"
)

// Learner-facing feedback per outcome.
const (
	feedbackCorrect   = "Well done, you used the expression correctly."
	feedbackAlready   = "You already completed that expression earlier, but it was used correctly again."
	feedbackClose     = "Close, but not quite. Give it another try."
	feedbackIncorrect = "That didn't match the target expression. Moving on to keep the session going."

	// completionMessage is returned by NextPrompt once no targets remain.
	completionMessage = "You have worked through every expression in this session. Check the summary to see how you did."
)

// Config carries the engine's collaborators and tuning knobs. Sessions,
// Expressions and Scorer are required; everything else has a working default.
type Config struct {
	Sessions    session.Store
	Expressions expression.Store

	// Generator produces roleplay scenarios for prompts. Defaults to
	// [dialogue.StaticGenerator] when nil.
	Generator dialogue.Generator

	Scorer *similarity.Scorer

	// Hinter supplies "nearest expression" hints on missed turns.
	// Defaults to a [similarity.Hinter] with standard settings.
	Hinter *similarity.Hinter

	// Rand selects the initial target expression. When nil the shared
	// math/rand/v2 source is used. Tests inject a seeded source.
	Rand *mathrand.Rand

	// CorrectThreshold and CloseThreshold override the default score
	// bands. Zero values mean the defaults.
	CorrectThreshold float64
	CloseThreshold   float64

	// Metrics is optional; a nil value disables metric recording.
	Metrics *observe.Metrics

	// Now is stubbed in tests. Defaults to [time.Now].
	Now func() time.Time
}

// Engine runs practice sessions. Safe for concurrent use; turns on the same
// session are serialised, distinct sessions proceed independently.
type Engine struct {
	sessions    session.Store
	expressions expression.Store
	generator   dialogue.Generator
	scorer      *similarity.Scorer
	hinter      *similarity.Hinter
	metrics     *observe.Metrics

	correctThreshold float64
	closeThreshold   float64

	now func() time.Time

	rndMu sync.Mutex
	rnd   *mathrand.Rand

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New validates cfg and builds an [Engine].
func New(cfg Config) (*Engine, error) {
	var errs []error
	if cfg.Sessions == nil {
		errs = append(errs, errors.New("session store is required"))
	}
	if cfg.Expressions == nil {
		errs = append(errs, errors.New("expression store is required"))
	}
	if cfg.Scorer == nil {
		errs = append(errs, errors.New("similarity scorer is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("engine: config: %w", err)
	}

	e := &Engine{
		sessions:         cfg.Sessions,
		expressions:      cfg.Expressions,
		generator:        cfg.Generator,
		scorer:           cfg.Scorer,
		hinter:           cfg.Hinter,
		metrics:          cfg.Metrics,
		correctThreshold: cfg.CorrectThreshold,
		closeThreshold:   cfg.CloseThreshold,
		now:              cfg.Now,
		rnd:              cfg.Rand,
		locks:            make(map[string]*sync.Mutex),
	}
	if e.generator == nil {
		e.generator = dialogue.StaticGenerator{}
	}
	if e.hinter == nil {
		e.hinter = similarity.NewHinter()
	}
	if e.correctThreshold == 0 {
		e.correctThreshold = DefaultCorrectThreshold
	}
	if e.closeThreshold == 0 {
		e.closeThreshold = DefaultCloseThreshold
	}
	if e.closeThreshold >= e.correctThreshold {
		return nil, fmt.Errorf("engine: config: close threshold %v must be below correct threshold %v",
			e.closeThreshold, e.correctThreshold)
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// StartedSession is the result of [Engine.StartSession]: the created session
// snapshot and the opening scenario for its initial target.
type StartedSession struct {
	Session  session.Session
	Scenario dialogue.Scenario
}

// StartSession creates a new practice session for ownerID over the given
// expression IDs. The practice set must be non-empty, free of duplicates, and
// every ID must resolve in the expression store; otherwise [ErrInvalidInput]
// is returned. The initial target is chosen at random.
func (e *Engine) StartSession(ctx context.Context, ownerID string, expressionIDs []string) (StartedSession, error) {
	if len(expressionIDs) == 0 {
		return StartedSession{}, fmt.Errorf("%w: practice set is empty", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(expressionIDs))
	for _, id := range expressionIDs {
		if id == "" {
			return StartedSession{}, fmt.Errorf("%w: empty expression ID", ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			return StartedSession{}, fmt.Errorf("%w: duplicate expression ID %q", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}

	exprs, err := e.expressions.GetByIDs(ctx, expressionIDs)
	if err != nil {
		if errors.Is(err, expression.ErrNotFound) {
			return StartedSession{}, fmt.Errorf("%w: unknown expression in practice set", ErrInvalidInput)
		}
		return StartedSession{}, fmt.Errorf("engine: resolve practice set: %w", err)
	}

	now := e.now()
	sess := session.Session{
		ID:          generateID(),
		OwnerID:     ownerID,
		Expressions: make([]session.ExpressionState, len(exprs)),
		CreatedAt:   now,
	}
	for i, ex := range exprs {
		sess.Expressions[i] = session.ExpressionState{
			ExpressionID: ex.ID,
			Text:         ex.Text,
		}
	}
	sess.CurrentID = sess.Expressions[e.intN(len(sess.Expressions))].ExpressionID

	e.sessions.Create(sess)
	if e.metrics != nil {
		e.metrics.RecordSessionStarted(ctx)
	}
	observe.Logger(ctx).Info("session started",
		"session_id", sess.ID, "owner_id", ownerID, "expressions", len(exprs))

	sc := e.generateScenario(ctx, sess.State(sess.CurrentID).Text)
	return StartedSession{Session: sess.Clone(), Scenario: sc}, nil
}

// Evaluation is the result of one processed turn.
type Evaluation struct {
	SessionID string

	// Outcome classifies the turn.
	Outcome Outcome

	// Score is the similarity score that drove the classification.
	Score float64

	// ExpressionID and ExpressionText identify the expression the turn was
	// attributed to. Empty for a close turn, which consumes nothing.
	ExpressionID   string
	ExpressionText string

	// Feedback is the learner-facing message for this turn.
	Feedback string

	// Hint names the expression nearest to the utterance on a missed
	// turn. Informational only; empty when no candidate is near enough.
	Hint string

	// SessionComplete reports whether this turn finished the session.
	SessionComplete bool

	// Progress is the session's state after the turn.
	Progress session.Progress
}

// ProcessAnswer evaluates one learner utterance against the session's
// remaining targets and applies the resulting state transition.
//
// Classification, in order:
//
//  1. An incomplete expression scores ≥ the correct threshold: that
//     expression completes as a correct usage.
//  2. An already-completed expression scores ≥ the correct threshold: the
//     turn counts as an attempt but completion state does not change.
//  3. The best incomplete score is in the close band: nothing is mutated.
//  4. Otherwise the first incomplete expression completes as an incorrect
//     usage (fail-forward), so sessions always terminate.
//
// The in-memory transition commits before the persistence write; a failed
// counter update is logged and swallowed.
func (e *Engine) ProcessAnswer(ctx context.Context, sessionID, utterance string) (Evaluation, error) {
	if sessionID == "" {
		return Evaluation{}, fmt.Errorf("%w: session ID is empty", ErrInvalidInput)
	}
	if strings.TrimSpace(utterance) == "" {
		return Evaluation{}, fmt.Errorf("%w: utterance is empty", ErrInvalidInput)
	}

	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	start := e.now()

	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return Evaluation{}, err
	}
	if !sess.CompletedAt.IsZero() {
		return Evaluation{}, fmt.Errorf("process answer for %s: %w", sessionID, ErrSessionComplete)
	}

	// Best-scoring incomplete expression, first wins ties.
	bestIdx, bestScore := -1, -1.0
	for i := range sess.Expressions {
		if sess.Expressions[i].Completed {
			continue
		}
		if s := e.scorer.Score(utterance, sess.Expressions[i].Text); s > bestScore {
			bestIdx, bestScore = i, s
		}
	}

	now := e.now()
	ev := Evaluation{SessionID: sessionID}

	var persistID string
	var persistCorrect bool

	switch {
	case bestIdx >= 0 && bestScore >= e.correctThreshold:
		st := &sess.Expressions[bestIdx]
		st.Completed = true
		st.CorrectUsage = true
		st.Attempts++
		st.UsedAt = now
		ev.Outcome = OutcomeCorrect
		ev.Score = bestScore
		ev.ExpressionID = st.ExpressionID
		ev.ExpressionText = st.Text
		ev.Feedback = feedbackCorrect
		persistID, persistCorrect = st.ExpressionID, true

	case e.matchCompleted(&sess, utterance, &ev):
		// Already-completed resubmission: attempts and total count move,
		// completion state does not.
		st := sess.State(ev.ExpressionID)
		st.Attempts++
		st.UsedAt = now
		persistID, persistCorrect = st.ExpressionID, false

	case bestIdx >= 0 && bestScore >= e.closeThreshold:
		ev.Outcome = OutcomeClose
		ev.Score = bestScore
		ev.Feedback = feedbackClose

	default:
		st := sess.FirstIncomplete()
		st.Completed = true
		st.CorrectUsage = false
		st.Attempts++
		st.UsedAt = now
		ev.Outcome = OutcomeIncorrect
		if bestScore > 0 {
			ev.Score = bestScore
		}
		ev.ExpressionID = st.ExpressionID
		ev.ExpressionText = st.Text
		ev.Feedback = feedbackIncorrect
		ev.Hint = e.hint(&sess, utterance)
		persistID, persistCorrect = st.ExpressionID, false
	}

	// Advance the current target once it has been consumed.
	if cur := sess.State(sess.CurrentID); cur == nil || cur.Completed {
		if next := sess.FirstIncomplete(); next != nil {
			sess.CurrentID = next.ExpressionID
		} else {
			sess.CurrentID = ""
		}
	}

	if sess.Complete() && sess.CompletedAt.IsZero() {
		sess.CompletedAt = now
		ev.SessionComplete = true
		if e.metrics != nil {
			e.metrics.RecordSessionCompleted(ctx)
		}
		observe.Logger(ctx).Info("session completed",
			"session_id", sessionID, "expressions", len(sess.Expressions))
	}

	ev.Progress = progressOf(&sess)

	if err := e.sessions.Update(sess); err != nil {
		return Evaluation{}, fmt.Errorf("engine: commit turn: %w", err)
	}

	// Persistence runs after the in-memory commit; its failure does not
	// fail the turn.
	if persistID != "" {
		if err := e.expressions.UpdateStats(ctx, persistID, persistCorrect); err != nil {
			observe.Logger(ctx).Warn("expression stats update failed",
				"session_id", sessionID, "expression_id", persistID, "err", err)
		}
	}

	if e.metrics != nil {
		e.metrics.RecordTurn(ctx, string(ev.Outcome), e.now().Sub(start).Seconds())
	}
	return ev, nil
}

// matchCompleted checks the utterance against already-completed expressions
// and fills ev when one clears the correct threshold.
func (e *Engine) matchCompleted(sess *session.Session, utterance string, ev *Evaluation) bool {
	for i := range sess.Expressions {
		st := &sess.Expressions[i]
		if !st.Completed {
			continue
		}
		if s := e.scorer.Score(utterance, st.Text); s >= e.correctThreshold {
			ev.Outcome = OutcomeAlreadyCompleted
			ev.Score = s
			ev.ExpressionID = st.ExpressionID
			ev.ExpressionText = st.Text
			ev.Feedback = feedbackAlready
			return true
		}
	}
	return false
}

// hint returns the text of the incomplete expression nearest to the
// utterance, or the empty string when nothing is near enough.
func (e *Engine) hint(sess *session.Session, utterance string) string {
	var candidates []string
	for i := range sess.Expressions {
		if !sess.Expressions[i].Completed {
			candidates = append(candidates, sess.Expressions[i].Text)
		}
	}
	nearest, _, matched := e.hinter.Nearest(utterance, candidates)
	if !matched {
		return ""
	}
	return nearest
}

// Prompt is the result of [Engine.NextPrompt].
type Prompt struct {
	SessionID      string
	ExpressionID   string
	ExpressionText string
	Scenario       dialogue.Scenario

	// Complete is set when no targets remain; the scenario then carries a
	// closing message instead of a roleplay scene.
	Complete bool
}

// NextPrompt returns a scenario prompting for the session's current target
// expression, or a completion message when the session has finished.
func (e *Engine) NextPrompt(ctx context.Context, sessionID string) (Prompt, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return Prompt{}, err
	}
	if sess.Complete() {
		return Prompt{
			SessionID: sessionID,
			Scenario:  dialogue.Scenario{InitialMessage: completionMessage},
			Complete:  true,
		}, nil
	}

	target := sess.State(sess.CurrentID)
	if target == nil || target.Completed {
		target = sess.FirstIncomplete()
	}
	return Prompt{
		SessionID:      sessionID,
		ExpressionID:   target.ExpressionID,
		ExpressionText: target.Text,
		Scenario:       e.generateScenario(ctx, target.Text),
	}, nil
}

// Progress returns the session's current progress.
func (e *Engine) Progress(sessionID string) (session.Progress, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return session.Progress{}, err
	}
	return progressOf(&sess), nil
}

// Summarize aggregates the session into a [session.Summary]. Works for
// active sessions too; duration then runs up to the present.
func (e *Engine) Summarize(sessionID string) (session.Summary, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return session.Summary{}, err
	}

	sum := session.Summary{
		SessionID:            sess.ID,
		TotalExpressions:     len(sess.Expressions),
		CompletedExpressions: sess.CompletedCount(),
		Complete:             sess.Complete(),
		Results:              make([]session.ExpressionResult, len(sess.Expressions)),
	}
	for i, st := range sess.Expressions {
		sum.TotalAttempts += st.Attempts
		if st.CorrectUsage {
			sum.CorrectUsages++
		}
		sum.Results[i] = session.ExpressionResult{
			ExpressionID: st.ExpressionID,
			Text:         st.Text,
			Completed:    st.Completed,
			CorrectUsage: st.CorrectUsage,
			Attempts:     st.Attempts,
		}
	}

	end := sess.CompletedAt
	if end.IsZero() {
		end = e.now()
	}
	if d := end.Sub(sess.CreatedAt); d > 0 {
		sum.DurationSeconds = d.Seconds()
	}
	return sum, nil
}

// EndSession discards the session's state. Ending an unknown session is a
// no-op, so cleanup is idempotent.
func (e *Engine) EndSession(ctx context.Context, sessionID string) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.sessions.Get(sessionID); err != nil {
		return
	}
	e.sessions.Delete(sessionID)
	if e.metrics != nil {
		e.metrics.RecordSessionEnded(ctx)
	}
	observe.Logger(ctx).Info("session ended", "session_id", sessionID)

	e.locksMu.Lock()
	delete(e.locks, sessionID)
	e.locksMu.Unlock()
}

// generateScenario asks the dialogue generator for a scene, falling back to
// the static scenario on failure so prompting never fails.
func (e *Engine) generateScenario(ctx context.Context, expressionText string) dialogue.Scenario {
	start := e.now()
	sc, err := e.generator.GenerateScenario(ctx, expressionText)
	if e.metrics != nil {
		e.metrics.ScenarioDuration.Record(ctx, e.now().Sub(start).Seconds())
	}
	if err != nil {
		observe.Logger(ctx).Warn("scenario generation failed, serving static scene", "err", err)
		sc, _ = dialogue.StaticGenerator{}.GenerateScenario(ctx, expressionText)
	}
	return sc
}

// sessionLock returns the mutex serialising turns for sessionID, creating it
// lazily.
func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[sessionID] = l
	}
	return l
}

// intN draws from the configured random source, or the shared source when
// none was injected.
func (e *Engine) intN(n int) int {
	if e.rnd == nil {
		return mathrand.IntN(n)
	}
	e.rndMu.Lock()
	defer e.rndMu.Unlock()
	return e.rnd.IntN(n)
}

// progressOf derives the point-in-time progress view.
func progressOf(s *session.Session) session.Progress {
	p := session.Progress{
		CompletedCount: s.CompletedCount(),
		TotalCount:     len(s.Expressions),
		Complete:       s.Complete(),
	}
	if cur := s.State(s.CurrentID); cur != nil && !cur.Completed {
		p.CurrentExpressionID = cur.ExpressionID
		p.CurrentExpressionText = cur.Text
	}
	return p
}

// generateID returns a 16-byte random hex identifier.
func generateID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("engine: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}
