package service

import (
	"battle-arena/internal/acceptance"
	"battle-arena/internal/api"
	"battle-arena/internal/constants"
	"battle-arena/internal/countdown"
	"battle-arena/internal/domain"
	"battle-arena/internal/draft"
	"battle-arena/internal/failure"
	"battle-arena/internal/identity"
	"battle-arena/internal/matchmaking"
	"battle-arena/internal/pubsub"
	"battle-arena/internal/rank"
	"battle-arena/internal/rounds"
	"battle-arena/internal/scoring"
	"battle-arena/internal/season"
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrWrongStage    = errors.New("operation not allowed in the current stage")
	ErrNoActiveMatch = errors.New("no active match")
)

type Stage string

const (
	StageLobby      Stage = "LOBBY"
	StageQueued     Stage = "QUEUED"
	StageAcceptance Stage = "ACCEPTANCE"
	StageDraft      Stage = "DRAFT"
	StageRounds     Stage = "ROUNDS"
	StageResult     Stage = "RESULT"
)

type BattleAPI interface {
	acceptance.Responder
	draft.Picker
	rounds.Selector
	GetMatchStatus(ctx context.Context, matchID string) (*domain.MatchStatusUpdate, error)
	GetMatchResult(ctx context.Context, matchID string) (*domain.MatchResult, error)
	PollMatchTracking(ctx context.Context) (string, error)
}

type RoundStateReader interface {
	GetRoundState(ctx context.Context, matchID string) (*domain.RoundState, error)
	Invalidate(ctx context.Context, matchID string)
}

type EventSource interface {
	Run(ctx context.Context, handle func(api.ServerEvent))
}

type Publisher interface {
	Publish(pubsub.Event)
}

// FlowDeps wires a Flow. Events, History and Seasons may be nil.
type FlowDeps struct {
	Client       BattleAPI
	Events       EventSource
	RoundStates  RoundStateReader
	Gate         *season.Gate
	Matchmaking  *matchmaking.Coordinator
	Results      *ResultSessions
	History      *HistoryService
	Seasons      *SeasonService
	Bus          Publisher
	Clock        countdown.Clock
	TickInterval time.Duration
	Self         identity.Identity
	Logger       zerolog.Logger
}

// Flow drives one user from the lobby through a match to its result. It owns
// the single countdown loop and routes server push events to the component
// that owns the affected state.
type Flow struct {
	client  BattleAPI
	events  EventSource
	states  RoundStateReader
	season  *season.Gate
	mm      *matchmaking.Coordinator
	results *ResultSessions
	history *HistoryService
	seasons *SeasonService
	bus     Publisher
	clock   countdown.Clock
	loop    *countdown.Loop
	self    identity.Identity
	logger  zerolog.Logger
	ctx     context.Context
	stop    context.CancelFunc

	mu          sync.Mutex
	stage       Stage
	match       *domain.Match
	participant domain.MatchParticipant
	opponent    domain.MatchParticipant
	gate        *acceptance.Gate
	draft       *draft.Session
	engine      *rounds.Engine
	matchCancel context.CancelFunc
	finishing   bool
	handle      string
	rechecking  bool
	lastRecheck time.Time
}

func NewFlow(d FlowDeps) *Flow {
	ctx, stop := context.WithCancel(context.Background())
	interval := d.TickInterval
	if interval <= 0 {
		interval = constants.TickInterval
	}
	return &Flow{
		client:  d.Client,
		events:  d.Events,
		states:  d.RoundStates,
		season:  d.Gate,
		mm:      d.Matchmaking,
		results: d.Results,
		history: d.History,
		seasons: d.Seasons,
		bus:     d.Bus,
		clock:   d.Clock,
		loop:    countdown.NewLoop(d.Clock, interval),
		self:    d.Self,
		logger:  d.Logger.With().Str("component", "flow").Logger(),
		ctx:     ctx,
		stop:    stop,
		stage:   StageLobby,
	}
}

// Run consumes server push events until ctx ends.
func (f *Flow) Run(ctx context.Context) {
	if f.events == nil {
		<-ctx.Done()
		return
	}
	f.events.Run(ctx, f.HandleServerEvent)
}

func (f *Flow) Close() {
	f.loop.Stop()
	f.mu.Lock()
	gate, eng, cancel := f.gate, f.engine, f.matchCancel
	f.mu.Unlock()
	if gate != nil {
		gate.Close()
	}
	if eng != nil {
		eng.Close()
	}
	if cancel != nil {
		cancel()
	}
	f.mm.Close()
	f.stop()
}

// HandleServerEvent routes one push event. Events for other matches are
// dropped.
func (f *Flow) HandleServerEvent(ev api.ServerEvent) {
	ctx, cancel := context.WithTimeout(f.ctx, constants.ExternalAPITimeout)
	defer cancel()

	switch e := ev.(type) {
	case api.MatchFoundEvent:
		f.mm.HandleMatchFound(e.Found)
		f.enterAcceptance(e.Found)
	case api.MatchStatusEvent:
		f.onMatchStatus(ctx, e.Update)
	case api.RoundUpdateEvent:
		f.onRoundUpdate(ctx, e.MatchID, e.Round)
	case api.DraftPickEvent:
		f.onDraftPick(ctx, e.MatchID, e.Pick)
	default:
		f.logger.Warn().Str("type", fmt.Sprintf("%T", ev)).Msg("unhandled server event")
	}
}

func (f *Flow) RequestMatch(ctx context.Context) error {
	f.mu.Lock()
	if f.stage != StageLobby {
		stage := f.stage
		f.mu.Unlock()
		return failure.Conflict("requestMatch", fmt.Errorf("%w: %s", ErrWrongStage, stage))
	}
	f.mu.Unlock()

	if err := f.mm.RequestMatch(ctx); err != nil {
		return err
	}
	f.setStage(StageLobby, StageQueued)
	go f.awaitMatch()
	return nil
}

func (f *Flow) CancelMatchmaking() error {
	return f.mm.Cancel()
}

func (f *Flow) awaitMatch() {
	out, err := f.mm.Wait(f.ctx)
	if err != nil {
		return
	}
	switch o := out.(type) {
	case matchmaking.Found:
		f.enterAcceptance(o.MatchFound)
	case matchmaking.Failed, matchmaking.Cancelled:
		f.setStage(StageQueued, StageLobby)
	}
}

func (f *Flow) enterAcceptance(found domain.MatchFound) {
	f.mu.Lock()
	if f.match != nil {
		held := f.match.ID
		f.mu.Unlock()
		if held != found.MatchID {
			f.logger.Warn().Str("held_match_id", held).Str("match_id", found.MatchID).Msg("ignoring second match")
		}
		return
	}
	if f.stage != StageLobby && f.stage != StageQueued {
		f.mu.Unlock()
		return
	}
	m := found.Match
	m.ID = found.MatchID
	f.match = &m
	f.participant = found.Participant
	f.opponent = found.Opponent
	f.gate = acceptance.NewGate(found, f.clock, f.client, f.mm, f.bus, f.logger)
	f.stage = StageAcceptance
	f.finishing = false
	f.mu.Unlock()

	f.logger.Info().Str("match_id", found.MatchID).Msg("awaiting acceptance")
	f.loop.Start(f.ctx, f)
}

func (f *Flow) AcceptMatch(ctx context.Context) (acceptance.State, error) {
	return f.respond(ctx, true)
}

func (f *Flow) RejectMatch(ctx context.Context) (acceptance.State, error) {
	return f.respond(ctx, false)
}

func (f *Flow) respond(ctx context.Context, accept bool) (acceptance.State, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate == nil {
		return "", failure.Conflict("respondToMatch", ErrNoActiveMatch)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	var (
		state acceptance.State
		err   error
	)
	if accept {
		state, err = gate.Accept(ctx)
	} else {
		state, err = gate.Reject(ctx)
	}
	matchID := gate.MatchID()
	if err != nil {
		if errors.Is(err, failure.ErrConflict) {
			f.checkAlive(ctx, matchID)
		}
		return state, err
	}

	switch state {
	case acceptance.Expired:
		f.toLobby(matchID, "acceptance expired")
	case acceptance.Rejected:
		f.toLobby(matchID, "match rejected")
	case acceptance.Accepted:
		// the opponent may have accepted already
		if st, err := f.client.GetMatchStatus(ctx, matchID); err == nil {
			f.onMatchStatus(ctx, *st)
		}
	}
	return state, nil
}

func (f *Flow) enterDraft() {
	f.mu.Lock()
	if f.stage != StageAcceptance || f.match == nil {
		f.mu.Unlock()
		return
	}
	m := *f.match
	sess := draft.NewSession(m, f.client, f.bus, f.logger)
	eng := rounds.NewEngine(m, f.participant.ID, f.clock, f.client, f.bus, f.logger)
	matchCtx, cancel := context.WithCancel(f.ctx)
	gate := f.gate
	f.gate = nil
	f.draft = sess
	f.engine = eng
	f.matchCancel = cancel
	f.stage = StageDraft
	f.mu.Unlock()

	if gate != nil {
		gate.Close()
	}
	f.logger.Info().Str("match_id", m.ID).Str("pick_mode", string(m.Draft.Mode)).Msg("draft started")
	go f.awaitDraft(matchCtx, m.ID, sess, eng)
	f.loop.Start(f.ctx, f)
}

func (f *Flow) awaitDraft(ctx context.Context, matchID string, sess *draft.Session, eng *rounds.Engine) {
	select {
	case <-ctx.Done():
		return
	case <-sess.Done():
	}
	eng.DraftCompleted()
	f.setStage(StageDraft, StageRounds)

	syncCtx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()
	f.syncRounds(syncCtx, matchID)
}

func (f *Flow) SubmitPick(ctx context.Context, unitID string) (draft.Ack, error) {
	f.mu.Lock()
	sess, self := f.draft, f.participant.ID
	f.mu.Unlock()
	if sess == nil {
		return draft.Ack{}, failure.Conflict("submitPick", ErrNoActiveMatch)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()
	return sess.SubmitPick(ctx, self, unitID)
}

func (f *Flow) SelectUnit(ctx context.Context, unitID string) (rounds.Ack, error) {
	f.mu.Lock()
	eng, stage := f.engine, f.stage
	f.mu.Unlock()
	if eng == nil || stage != StageRounds {
		return rounds.Ack{}, failure.Conflict("selectUnit", fmt.Errorf("%w: %s", ErrWrongStage, stage))
	}

	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	ack, err := eng.SelectUnit(ctx, unitID)
	if current, ok := eng.Current(); ok {
		f.states.Invalidate(ctx, current.MatchID)
	}
	if err != nil && errors.Is(err, failure.ErrConflict) && !localRoundError(err) {
		f.checkAlive(ctx, f.matchID())
	}
	return ack, err
}

func localRoundError(err error) bool {
	for _, target := range []error{
		rounds.ErrSelectionLocked,
		rounds.ErrSubmissionInFlight,
		rounds.ErrSelectionClosed,
		rounds.ErrNoActiveRound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Tick drives the acceptance deadline and the round deadlines.
func (f *Flow) Tick(now time.Time) bool {
	f.mu.Lock()
	stage, gate, eng := f.stage, f.gate, f.engine
	f.mu.Unlock()

	switch stage {
	case StageAcceptance:
		if gate == nil || gate.Tick(now) {
			return true
		}
		if gate.State() == acceptance.Expired {
			f.toLobby(gate.MatchID(), "acceptance expired")
			return false
		}
		if overdue, ok := gate.Overdue(now); ok {
			f.recheckAcceptance(gate.MatchID(), now, overdue)
		}
		return true
	case StageDraft, StageRounds:
		if eng == nil {
			return true
		}
		eng.Tick(now)
		if eng.Finished() {
			f.finish(f.ctx)
		}
		return true
	}
	return false
}

func (f *Flow) onMatchStatus(ctx context.Context, update domain.MatchStatusUpdate) {
	f.mu.Lock()
	if f.match == nil || f.match.ID != update.MatchID || !update.Status.Valid() {
		f.mu.Unlock()
		f.logger.Debug().Str("match_id", update.MatchID).Str("status", string(update.Status)).Msg("ignoring status update")
		return
	}
	f.match.Status = update.Status
	stage := f.stage
	f.mu.Unlock()

	f.states.Invalidate(ctx, update.MatchID)
	f.logger.Info().Str("match_id", update.MatchID).Str("status", string(update.Status)).Msg("match status changed")

	switch update.Status {
	case domain.MatchCancelled:
		f.toLobby(update.MatchID, "match cancelled")
	case domain.MatchAccepted, domain.MatchDrafting:
		if stage == StageAcceptance {
			f.enterDraft()
		}
	case domain.MatchInProgress:
		if stage == StageAcceptance {
			f.enterDraft()
		}
		f.syncRounds(ctx, update.MatchID)
	case domain.MatchCompleted:
		f.finish(ctx)
	}
}

func (f *Flow) onRoundUpdate(ctx context.Context, matchID string, r domain.Round) {
	f.mu.Lock()
	eng := f.engine
	current := f.match != nil && f.match.ID == matchID
	f.mu.Unlock()
	if eng == nil || !current {
		return
	}

	f.states.Invalidate(ctx, matchID)
	if err := eng.ApplyRoundUpdate(r); err != nil {
		f.logger.Warn().Err(err).Str("match_id", matchID).Int("round", int(r.Number)).Msg("round update not applied")
		return
	}
	if eng.Finished() {
		f.finish(ctx)
	}
}

func (f *Flow) onDraftPick(ctx context.Context, matchID string, pick domain.DraftPick) {
	f.mu.Lock()
	sess := f.draft
	current := f.match != nil && f.match.ID == matchID
	f.mu.Unlock()
	if sess == nil || !current {
		return
	}

	if err := sess.ApplyRemote(pick); err != nil {
		if syncErr := sess.Resync(ctx); syncErr != nil {
			f.logger.Warn().Err(syncErr).Str("match_id", matchID).Msg("draft resync failed")
		}
	}
}

// syncRounds merges the server's rounds into the engine in round order.
func (f *Flow) syncRounds(ctx context.Context, matchID string) {
	f.mu.Lock()
	eng := f.engine
	f.mu.Unlock()
	if eng == nil {
		return
	}

	state, err := f.states.GetRoundState(ctx, matchID)
	if err != nil {
		f.logger.Warn().Err(err).Str("match_id", matchID).Msg("failed to fetch round state")
		return
	}
	ordered := slices.Clone(state.Rounds)
	slices.SortFunc(ordered, func(a, b domain.Round) int { return cmp.Compare(a.Number, b.Number) })
	for _, r := range ordered {
		if err := eng.ApplyRoundUpdate(r); err != nil {
			f.logger.Warn().Err(err).Int("round", int(r.Number)).Msg("round not applied during sync")
			break
		}
	}
	if eng.Finished() {
		f.finish(ctx)
	}
}

// recheckAcceptance polls the match status once the local user has accepted
// but the server has not moved past PENDING by the deadline. A match still
// PENDING after the grace period is treated as cancelled.
func (f *Flow) recheckAcceptance(matchID string, now time.Time, overdue time.Duration) {
	f.mu.Lock()
	if f.rechecking || now.Sub(f.lastRecheck) < constants.AcceptanceRecheckInterval {
		f.mu.Unlock()
		return
	}
	f.rechecking = true
	f.lastRecheck = now
	f.mu.Unlock()

	go func() {
		defer func() {
			f.mu.Lock()
			f.rechecking = false
			f.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(f.ctx, constants.ExternalAPITimeout)
		defer cancel()
		st, err := f.client.GetMatchStatus(ctx, matchID)
		switch {
		case errors.Is(err, failure.ErrConflict):
			f.toLobby(matchID, "match no longer available")
		case err != nil:
			f.logger.Warn().Err(err).Str("match_id", matchID).Msg("failed to recheck acceptance")
		case st.Status == domain.MatchPending && overdue >= constants.AcceptanceGracePeriod:
			f.logger.Warn().Str("match_id", matchID).Dur("overdue", overdue).Msg("match still pending past acceptance deadline")
			f.toLobby(matchID, "acceptance expired")
		default:
			f.onMatchStatus(ctx, *st)
		}
	}()
}

// checkAlive closes the flow when the server no longer knows the match.
func (f *Flow) checkAlive(ctx context.Context, matchID string) {
	if matchID == "" {
		return
	}
	st, err := f.client.GetMatchStatus(ctx, matchID)
	switch {
	case errors.Is(err, failure.ErrConflict):
		f.toLobby(matchID, "match no longer available")
	case err != nil:
		f.logger.Warn().Err(err).Str("match_id", matchID).Msg("failed to check match status")
	default:
		f.onMatchStatus(ctx, *st)
	}
}

// finish builds the result once the match is COMPLETED. A failed fetch is
// retried on the next status update or tick.
func (f *Flow) finish(ctx context.Context) {
	f.mu.Lock()
	if f.match == nil || f.stage == StageResult || f.finishing {
		f.mu.Unlock()
		return
	}
	f.finishing = true
	matchID := f.match.ID
	eng := f.engine
	self, opponent := f.participant, f.opponent
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	result, err := f.client.GetMatchResult(ctx, matchID)
	if err != nil {
		f.logger.Warn().Err(err).Str("match_id", matchID).Msg("match result not available yet")
		f.mu.Lock()
		f.finishing = false
		f.mu.Unlock()
		return
	}

	played := result.Rounds
	if eng != nil {
		for _, r := range result.Rounds {
			if err := eng.ApplyRoundUpdate(r); err != nil {
				f.logger.Warn().Err(err).Int("round", int(r.Number)).Msg("result round not applied")
			}
		}
		played = eng.Rounds()
	}
	totals := scoring.Aggregate(played)
	m := result.Match
	m.Status = domain.MatchCompleted
	scoring.Finalize(&m, totals)

	view := ResultView{
		Match:               m,
		Rounds:              played,
		Totals:              totals.Totals,
		WinnerParticipantID: totals.WinnerParticipantID,
		SelfParticipantID:   self.ID,
		OpponentUserID:      opponent.UserID,
		CreatedAt:           f.clock.Now(),
	}
	if sn := f.season.Season(); sn != nil {
		view.SeasonID = sn.ID
	}
	change, rankErr := rank.Classify(result.RankFrom, result.RankTo)
	if rankErr != nil {
		f.logger.Error().Err(rankErr).Str("match_id", matchID).Msg("failed to classify rank change")
	} else {
		view.RankChange = change
		view.Display = rank.DisplayFor(change)
	}

	handle, err := f.results.Create(view)
	if err != nil {
		f.logger.Error().Err(err).Str("match_id", matchID).Msg("failed to create result session")
		f.mu.Lock()
		f.finishing = false
		f.mu.Unlock()
		return
	}
	view.Handle = handle

	f.mu.Lock()
	if f.match == nil || f.match.ID != matchID {
		f.mu.Unlock()
		f.logger.Warn().Str("match_id", matchID).Msg("flow closed while building result")
		return
	}
	f.stage = StageResult
	f.handle = handle
	f.finishing = false
	f.match.Status = domain.MatchCompleted
	f.match.WinnerParticipantID = m.WinnerParticipantID
	f.mu.Unlock()

	if f.history != nil {
		if err := f.history.RecordResult(ctx, view); err != nil {
			f.logger.Warn().Err(err).Str("match_id", matchID).Msg("result not stored locally")
		}
	}
	if rankErr == nil {
		if f.seasons != nil {
			f.seasons.RecordStanding(ctx, result.RankTo)
		} else {
			f.season.UpdateStanding(result.RankTo)
		}
	}
	f.mm.ReleaseQueue(matchID)

	f.logger.Info().
		Str("match_id", matchID).
		Str("handle", handle).
		Str("outcome", view.Outcome()).
		Msg("match completed")
	f.bus.Publish(pubsub.MatchCompleted{
		MatchID:             matchID,
		ResultHandle:        handle,
		Totals:              totals.Totals,
		WinnerParticipantID: totals.WinnerParticipantID,
	})
	if rankErr == nil {
		f.bus.Publish(pubsub.RankChanged{MatchID: matchID, Change: change})
	}
}

func (f *Flow) Result(handle string) (ResultView, error) {
	return f.results.Get(handle)
}

// AcknowledgeResult destroys the result session and returns to the lobby.
func (f *Flow) AcknowledgeResult(handle string) error {
	if err := f.results.Acknowledge(handle); err != nil {
		return err
	}
	f.mu.Lock()
	if f.handle == handle {
		f.resetLocked()
	}
	f.mu.Unlock()
	return nil
}

// toLobby drops all local state for matchID without telling the server.
func (f *Flow) toLobby(matchID, reason string) {
	f.mu.Lock()
	if f.match == nil || f.match.ID != matchID {
		f.mu.Unlock()
		return
	}
	gate, eng := f.gate, f.engine
	f.resetLocked()
	f.mu.Unlock()

	if gate != nil {
		gate.Close()
	}
	if eng != nil {
		eng.Close()
	}
	f.mm.ReleaseQueue(matchID)

	f.logger.Info().Str("match_id", matchID).Str("reason", reason).Msg("returning to lobby")
	f.bus.Publish(pubsub.FlowClosed{MatchID: matchID, Reason: reason})
}

func (f *Flow) resetLocked() {
	if f.matchCancel != nil {
		f.matchCancel()
	}
	f.stage = StageLobby
	f.match = nil
	f.participant = domain.MatchParticipant{}
	f.opponent = domain.MatchParticipant{}
	f.gate = nil
	f.draft = nil
	f.engine = nil
	f.matchCancel = nil
	f.finishing = false
	f.handle = ""
	f.lastRecheck = time.Time{}
}

// Resume rebuilds local state for a match the server is still tracking, e.g.
// after a restart.
func (f *Flow) Resume(ctx context.Context) error {
	if held := f.matchID(); held != "" {
		f.logger.Debug().Str("match_id", held).Msg("match already held, skipping resume")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	matchID, err := f.client.PollMatchTracking(ctx)
	if err != nil {
		return fmt.Errorf("failed to poll match tracking: %w", err)
	}
	if matchID == "" {
		f.logger.Debug().Msg("no match in flight")
		return nil
	}

	var (
		status *domain.MatchStatusUpdate
		state  *domain.RoundState
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		status, err = f.client.GetMatchStatus(gCtx, matchID)
		return err
	})
	g.Go(func() error {
		var err error
		state, err = f.states.GetRoundState(gCtx, matchID)
		return err
	})
	if err := g.Wait(); err != nil {
		f.logger.Error().Err(err).Str("match_id", matchID).Msg("failed to fetch match for resume")
		return fmt.Errorf("failed to resume match %s: %w", matchID, err)
	}

	m := state.Match
	m.ID = matchID
	m.Status = status.Status
	self, ok := m.ParticipantForUser(f.self.UserID)
	if !ok {
		return failure.Validation("resume", fmt.Errorf("user %q is not in match %s", f.self.UserID, matchID))
	}
	var opponent domain.MatchParticipant
	for _, p := range m.Participants {
		if p.ID != self.ID {
			opponent = p
		}
	}
	found := domain.MatchFound{Match: m, MatchID: matchID, Participant: self, Opponent: opponent}

	f.logger.Info().Str("match_id", matchID).Str("status", string(m.Status)).Msg("resuming match")
	switch m.Status {
	case domain.MatchPending:
		f.mm.HandleMatchFound(found)
		f.enterAcceptance(found)
	case domain.MatchAccepted, domain.MatchDrafting, domain.MatchInProgress, domain.MatchCompleted:
		f.mm.HandleMatchFound(found)
		f.mu.Lock()
		f.match = &m
		f.participant = self
		f.opponent = opponent
		f.stage = StageAcceptance
		f.mu.Unlock()
		f.enterDraft()

		f.mu.Lock()
		sess, eng := f.draft, f.engine
		f.mu.Unlock()
		if sess == nil {
			return nil
		}
		if err := sess.Resync(ctx); err != nil {
			f.logger.Warn().Err(err).Str("match_id", matchID).Msg("draft resync failed on resume")
		}
		if m.Status == domain.MatchInProgress || m.Status == domain.MatchCompleted {
			eng.DraftCompleted()
			f.setStage(StageDraft, StageRounds)
			f.syncRounds(ctx, matchID)
		}
		if m.Status == domain.MatchCompleted {
			f.finish(ctx)
		}
	case domain.MatchCancelled:
		f.logger.Info().Str("match_id", matchID).Msg("tracked match was cancelled")
	}
	return nil
}

func (f *Flow) matchID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.match == nil {
		return ""
	}
	return f.match.ID
}

func (f *Flow) setStage(from, to Stage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stage == from {
		f.stage = to
	}
}

type DraftSnapshot struct {
	Picks           map[string][]string
	ExpectedPickers []string
	Completed       bool
}

// Snapshot is the read model handed to presentation.
type Snapshot struct {
	Stage               Stage
	Matchmaking         matchmaking.Phase
	Membership          season.Membership
	MatchID             string
	ParticipantID       string
	OpponentID          string
	Acceptance          acceptance.State
	AcceptanceRemaining time.Duration
	Draft               *DraftSnapshot
	Rounds              []domain.Round
	RoundRemaining      time.Duration
	Totals              map[string]int
	LeaderID            *string
	ResultHandle        string
}

func (f *Flow) Snapshot() Snapshot {
	now := f.clock.Now()

	f.mu.Lock()
	snap := Snapshot{
		Stage:         f.stage,
		ParticipantID: f.participant.ID,
		OpponentID:    f.opponent.ID,
		ResultHandle:  f.handle,
	}
	if f.match != nil {
		snap.MatchID = f.match.ID
	}
	gate, sess, eng := f.gate, f.draft, f.engine
	f.mu.Unlock()

	snap.Matchmaking = f.mm.Phase()
	snap.Membership = f.season.Membership()
	if gate != nil {
		snap.Acceptance = gate.State()
		snap.AcceptanceRemaining = gate.Remaining(now)
	}
	if sess != nil {
		snap.Draft = &DraftSnapshot{
			Picks:           sess.Picks(),
			ExpectedPickers: sess.ExpectedPickers(),
			Completed:       sess.Completed(),
		}
	}
	if eng != nil {
		snap.Rounds = eng.Rounds()
		snap.RoundRemaining = eng.Remaining(now)
		totals := scoring.Aggregate(snap.Rounds)
		snap.Totals = totals.Totals
		snap.LeaderID = totals.WinnerParticipantID
	}
	return snap
}
