package api

import (
	"battle-arena/internal/domain"
	"fmt"
	"time"
)

type envelope[T any] struct {
	Data  T         `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type AckResponse struct {
	OK bool `json:"ok"`
}

type ParticipantResponse struct {
	ID          string `json:"id"`
	MatchID     string `json:"matchId"`
	UserID      string `json:"userId"`
	HasAccepted bool   `json:"hasAccepted"`
	JoinOrder   int    `json:"joinOrder"`
}

type DraftRulesResponse struct {
	Mode                string `json:"mode"`
	PicksPerParticipant int    `json:"picksPerParticipant"`
	AllowDuplicates     bool   `json:"allowDuplicates"`
}

type MatchResponse struct {
	ID                  string                `json:"id"`
	Status              string                `json:"status"`
	CreatedAt           time.Time             `json:"createdAt"`
	AcceptanceDeadline  time.Time             `json:"acceptanceDeadline"`
	WinnerParticipantID *string               `json:"winnerParticipantId"`
	Participants        []ParticipantResponse `json:"participants"`
	Draft               *DraftRulesResponse   `json:"draft,omitempty"`
}

type RoundParticipantResponse struct {
	MatchParticipantID string     `json:"matchParticipantId"`
	SelectedUnitID     *string    `json:"selectedUnitId"`
	SelectionTimestamp *time.Time `json:"selectionTimestamp"`
	PointsEarned       int        `json:"pointsEarned"`
}

type RoundResponse struct {
	ID                string                     `json:"id"`
	MatchID           string                     `json:"matchId"`
	RoundNumber       string                     `json:"roundNumber"`
	Status            string                     `json:"status"`
	SelectionDeadline time.Time                  `json:"selectionDeadline"`
	Participants      []RoundParticipantResponse `json:"participants"`
}

type MatchFoundResponse struct {
	Match       MatchResponse       `json:"match"`
	MatchID     string              `json:"matchId"`
	Participant ParticipantResponse `json:"participant"`
	Opponent    ParticipantResponse `json:"opponent"`
}

const (
	matchmakingFound  = "MATCH_FOUND"
	matchmakingFailed = "MATCHMAKING_FAILED"
)

type MatchmakingResponse struct {
	Type   string              `json:"type"`
	Found  *MatchFoundResponse `json:"matchFound,omitempty"`
	Reason string              `json:"reason,omitempty"`
}

type MatchStatusResponse struct {
	MatchID string `json:"matchId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type RoundStateResponse struct {
	Match  MatchResponse   `json:"match"`
	Rounds []RoundResponse `json:"rounds"`
}

type StandingResponse struct {
	Tier   string `json:"tier"`
	Rating int    `json:"rating"`
}

type SeasonResponse struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
	Active   bool      `json:"active"`
}

type MembershipResponse struct {
	Active   bool              `json:"active"`
	Season   *SeasonResponse   `json:"season,omitempty"`
	Standing *StandingResponse `json:"standing,omitempty"`
}

type SeasonJoinResponse struct {
	SeasonID        string `json:"seasonId"`
	InitialRating   int    `json:"initialRating"`
	InitialRankTier string `json:"initialRankTier"`
}

type RankChangeResponse struct {
	From           StandingResponse `json:"from"`
	To             StandingResponse `json:"to"`
	Classification string           `json:"classification"`
}

type HistoryEntryResponse struct {
	MatchID             string              `json:"matchId"`
	SeasonID            string              `json:"seasonId"`
	Status              string              `json:"status"`
	ParticipantID       string              `json:"participantId"`
	OpponentUserID      string              `json:"opponentUserId"`
	SelfTotal           int                 `json:"selfTotal"`
	OpponentTotal       int                 `json:"opponentTotal"`
	WinnerParticipantID *string             `json:"winnerParticipantId"`
	PlayedAt            time.Time           `json:"playedAt"`
	RankChange          *RankChangeResponse `json:"rankChange,omitempty"`
}

type PaginationResponse struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

type HistoryResponse struct {
	Results    []HistoryEntryResponse `json:"results"`
	Pagination PaginationResponse     `json:"pagination"`
}

type TrackingResponse struct {
	CurrentMatchID *string `json:"currentMatchId"`
}

type MatchResultResponse struct {
	Match    MatchResponse    `json:"match"`
	Rounds   []RoundResponse  `json:"rounds"`
	RankFrom StandingResponse `json:"rankFrom"`
	RankTo   StandingResponse `json:"rankTo"`
}

type DraftPickResponse struct {
	ParticipantID string    `json:"participantId"`
	UnitID        string    `json:"unitId"`
	PickedAt      time.Time `json:"pickedAt"`
}

type DraftStateResponse struct {
	Picks []DraftPickResponse `json:"picks"`
}

type pickRequest struct {
	ParticipantID string `json:"participantId"`
	UnitID        string `json:"unitId"`
	RoundNumber   string `json:"roundNumber,omitempty"`
}

var roundNumbers = map[string]domain.RoundNumber{
	"ONE":   domain.RoundOne,
	"TWO":   domain.RoundTwo,
	"THREE": domain.RoundThree,
}

func RoundNumberName(n domain.RoundNumber) string {
	for name, v := range roundNumbers {
		if v == n {
			return name
		}
	}
	return ""
}

func (p ParticipantResponse) toDomain() domain.MatchParticipant {
	return domain.MatchParticipant{
		ID:          p.ID,
		MatchID:     p.MatchID,
		UserID:      p.UserID,
		HasAccepted: p.HasAccepted,
		JoinOrder:   p.JoinOrder,
	}
}

func (m MatchResponse) toDomain() (domain.Match, error) {
	match := domain.Match{
		ID:                  m.ID,
		Status:              domain.MatchStatus(m.Status),
		CreatedAt:           m.CreatedAt,
		AcceptanceDeadline:  m.AcceptanceDeadline,
		WinnerParticipantID: m.WinnerParticipantID,
		Draft:               domain.DraftRules{Mode: domain.PickAlternating, PicksPerParticipant: 1},
	}
	for _, p := range m.Participants {
		match.Participants = append(match.Participants, p.toDomain())
	}
	if m.Draft != nil {
		match.Draft = domain.DraftRules{
			Mode:                domain.PickMode(m.Draft.Mode),
			PicksPerParticipant: m.Draft.PicksPerParticipant,
			AllowDuplicates:     m.Draft.AllowDuplicates,
		}
		if match.Draft.PicksPerParticipant <= 0 {
			return domain.Match{}, fmt.Errorf("match %s: picksPerParticipant must be positive", m.ID)
		}
	}
	if err := match.Validate(); err != nil {
		return domain.Match{}, err
	}
	return match, nil
}

func (r RoundResponse) toDomain(m *domain.Match) (domain.Round, error) {
	number, ok := roundNumbers[r.RoundNumber]
	if !ok {
		return domain.Round{}, fmt.Errorf("%w: %q", domain.ErrRoundNumber, r.RoundNumber)
	}
	round := domain.Round{
		ID:                r.ID,
		MatchID:           r.MatchID,
		Number:            number,
		Status:            domain.RoundStatus(r.Status),
		SelectionDeadline: r.SelectionDeadline,
	}
	for _, p := range r.Participants {
		round.Participants = append(round.Participants, domain.RoundParticipant{
			MatchParticipantID: p.MatchParticipantID,
			SelectedUnitID:     p.SelectedUnitID,
			SelectionTimestamp: p.SelectionTimestamp,
			PointsEarned:       p.PointsEarned,
		})
	}
	if err := round.Validate(m); err != nil {
		return domain.Round{}, err
	}
	return round, nil
}

func roundsToDomain(rounds []RoundResponse, m *domain.Match) ([]domain.Round, error) {
	out := make([]domain.Round, 0, len(rounds))
	for _, r := range rounds {
		round, err := r.toDomain(m)
		if err != nil {
			return nil, err
		}
		out = append(out, round)
	}
	return out, nil
}

func (f MatchFoundResponse) toDomain() (domain.MatchFound, error) {
	match, err := f.Match.toDomain()
	if err != nil {
		return domain.MatchFound{}, err
	}
	if f.MatchID != match.ID {
		return domain.MatchFound{}, fmt.Errorf("matchId %q does not match match.id %q", f.MatchID, match.ID)
	}
	participant, opponent := f.Participant.toDomain(), f.Opponent.toDomain()
	if _, ok := match.Participant(participant.ID); !ok {
		return domain.MatchFound{}, fmt.Errorf("participant %q not in match %s", participant.ID, match.ID)
	}
	if _, ok := match.Participant(opponent.ID); !ok || opponent.ID == participant.ID {
		return domain.MatchFound{}, fmt.Errorf("opponent %q not in match %s", opponent.ID, match.ID)
	}
	return domain.MatchFound{Match: match, MatchID: f.MatchID, Participant: participant, Opponent: opponent}, nil
}

func (s StandingResponse) toDomain() domain.RankStanding {
	return domain.RankStanding{Tier: domain.RankTier(s.Tier), Rating: s.Rating}
}

func (h HistoryEntryResponse) toDomain() (domain.HistoryEntry, error) {
	status := domain.MatchStatus(h.Status)
	if !status.Terminal() {
		return domain.HistoryEntry{}, fmt.Errorf("history entry %s has non-terminal status %q", h.MatchID, h.Status)
	}
	entry := domain.HistoryEntry{
		Record: domain.MatchRecord{
			MatchID:             h.MatchID,
			SeasonID:            h.SeasonID,
			Status:              status,
			ParticipantID:       h.ParticipantID,
			OpponentUserID:      h.OpponentUserID,
			SelfTotal:           h.SelfTotal,
			OpponentTotal:       h.OpponentTotal,
			WinnerParticipantID: h.WinnerParticipantID,
			PlayedAt:            h.PlayedAt,
		},
	}
	if h.RankChange != nil {
		entry.RankChange = &domain.RankChangeInfo{
			From:           h.RankChange.From.toDomain(),
			To:             h.RankChange.To.toDomain(),
			Classification: domain.RankClassification(h.RankChange.Classification),
		}
	}
	return entry, nil
}
