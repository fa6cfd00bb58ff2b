package pubsub

import (
	"battle-arena/internal/domain"
	"time"
)

type Kind string

const (
	KindSeasonJoined         Kind = "season.joined"
	KindMatchmakingStarted   Kind = "matchmaking.started"
	KindMatchFound           Kind = "matchmaking.found"
	KindMatchmakingFailed    Kind = "matchmaking.failed"
	KindMatchmakingCancelled Kind = "matchmaking.cancelled"
	KindAcceptanceResolved   Kind = "acceptance.resolved"
	KindAcceptanceExpired    Kind = "acceptance.expired"
	KindDraftPickConfirmed   Kind = "draft.pick_confirmed"
	KindDraftPickRejected    Kind = "draft.pick_rejected"
	KindDraftCompleted       Kind = "draft.completed"
	KindRoundStarted         Kind = "round.started"
	KindRoundSelected        Kind = "round.selected"
	KindRoundCompleted       Kind = "round.completed"
	KindMatchCompleted       Kind = "match.completed"
	KindRankChanged          Kind = "rank.changed"
	KindFlowClosed           Kind = "flow.closed"
)

// Event is a state-change notification for presentation code. The concrete
// types below are the only implementations.
type Event interface {
	Kind() Kind
}

type SeasonJoined struct {
	Result domain.SeasonJoinResult
}

type MatchmakingStarted struct{}

// MatchFound is surfaced even when cancellation was requested first.
type MatchFound struct {
	Found       domain.MatchFound
	AfterCancel bool
}

type MatchmakingFailed struct {
	Reason string
}

type MatchmakingCancelled struct{}

type AcceptanceResolved struct {
	MatchID string
	State   string
}

type AcceptanceExpired struct {
	MatchID string
}

type DraftPickConfirmed struct {
	MatchID       string
	ParticipantID string
	UnitID        string
	Remote        bool
}

type DraftPickRejected struct {
	MatchID       string
	ParticipantID string
	UnitID        string
	Reason        string
}

type DraftCompleted struct {
	MatchID string
	Picks   map[string][]string
}

type RoundStarted struct {
	MatchID  string
	Round    domain.RoundNumber
	Deadline time.Time
}

type RoundSelected struct {
	MatchID string
	Round   domain.RoundNumber
}

type RoundCompleted struct {
	MatchID string
	Round   domain.Round
}

type MatchCompleted struct {
	MatchID             string
	ResultHandle        string
	Totals              map[string]int
	WinnerParticipantID *string
}

type RankChanged struct {
	MatchID string
	Change  domain.RankChangeInfo
}

type FlowClosed struct {
	MatchID string
	Reason  string
}

func (SeasonJoined) Kind() Kind         { return KindSeasonJoined }
func (MatchmakingStarted) Kind() Kind   { return KindMatchmakingStarted }
func (MatchFound) Kind() Kind           { return KindMatchFound }
func (MatchmakingFailed) Kind() Kind    { return KindMatchmakingFailed }
func (MatchmakingCancelled) Kind() Kind { return KindMatchmakingCancelled }
func (AcceptanceResolved) Kind() Kind   { return KindAcceptanceResolved }
func (AcceptanceExpired) Kind() Kind    { return KindAcceptanceExpired }
func (DraftPickConfirmed) Kind() Kind   { return KindDraftPickConfirmed }
func (DraftPickRejected) Kind() Kind    { return KindDraftPickRejected }
func (DraftCompleted) Kind() Kind       { return KindDraftCompleted }
func (RoundStarted) Kind() Kind         { return KindRoundStarted }
func (RoundSelected) Kind() Kind        { return KindRoundSelected }
func (RoundCompleted) Kind() Kind       { return KindRoundCompleted }
func (MatchCompleted) Kind() Kind       { return KindMatchCompleted }
func (RankChanged) Kind() Kind          { return KindRankChanged }
func (FlowClosed) Kind() Kind           { return KindFlowClosed }
