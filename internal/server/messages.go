package server

import (
	"battle-arena/internal/domain"
	"battle-arena/internal/service"
	"time"
)

type Empty struct{}

type JoinSeasonResponse struct {
	SeasonID        string `json:"seasonId"`
	InitialRating   int    `json:"initialRating"`
	InitialRankTier string `json:"initialRankTier"`
}

type GetMembershipRequest struct {
	Refresh bool `json:"refresh"`
}

type MembershipResponse struct {
	Membership string `json:"membership"`
	SeasonID   string `json:"seasonId,omitempty"`
	SeasonName string `json:"seasonName,omitempty"`
	Tier       string `json:"tier,omitempty"`
	Rating     int    `json:"rating"`
	Cached     bool   `json:"cached"`
}

type StageResponse struct {
	Stage string `json:"stage"`
}

type AcceptanceResponse struct {
	State string `json:"state"`
}

type UnitRequest struct {
	UnitID string `json:"unitId"`
}

type PickResponse struct {
	ParticipantID string `json:"participantId"`
	UnitID        string `json:"unitId"`
	Duplicate     bool   `json:"duplicate"`
	Completed     bool   `json:"completed"`
}

type SelectionResponse struct {
	Round     int    `json:"round"`
	UnitID    string `json:"unitId"`
	Duplicate bool   `json:"duplicate"`
}

type DraftMessage struct {
	Picks           map[string][]string `json:"picks"`
	ExpectedPickers []string            `json:"expectedPickers"`
	Completed       bool                `json:"completed"`
}

type RoundParticipantMessage struct {
	ParticipantID  string  `json:"participantId"`
	SelectedUnitID *string `json:"selectedUnitId"`
	PointsEarned   int     `json:"pointsEarned"`
}

type RoundMessage struct {
	Number            int                       `json:"number"`
	Status            string                    `json:"status"`
	SelectionDeadline string                    `json:"selectionDeadline"`
	Participants      []RoundParticipantMessage `json:"participants"`
}

type SnapshotResponse struct {
	Stage                 string         `json:"stage"`
	Matchmaking           string         `json:"matchmaking"`
	Membership            string         `json:"membership"`
	MatchID               string         `json:"matchId,omitempty"`
	ParticipantID         string         `json:"participantId,omitempty"`
	OpponentID            string         `json:"opponentId,omitempty"`
	Acceptance            string         `json:"acceptance,omitempty"`
	AcceptanceRemainingMs int64          `json:"acceptanceRemainingMs"`
	Draft                 *DraftMessage  `json:"draft,omitempty"`
	Rounds                []RoundMessage `json:"rounds"`
	RoundRemainingMs      int64          `json:"roundRemainingMs"`
	Totals                map[string]int `json:"totals,omitempty"`
	LeaderID              *string        `json:"leaderId"`
	ResultHandle          string         `json:"resultHandle,omitempty"`
}

type HandleRequest struct {
	Handle string `json:"handle"`
}

type RankChangeMessage struct {
	Classification string `json:"classification"`
	FromTier       string `json:"fromTier"`
	FromRating     int    `json:"fromRating"`
	ToTier         string `json:"toTier"`
	ToRating       int    `json:"toRating"`
}

type RankDisplayMessage struct {
	Key         string `json:"key"`
	Tier        string `json:"tier"`
	RatingDelta int    `json:"ratingDelta"`
	Promoted    bool   `json:"promoted"`
	Demoted     bool   `json:"demoted"`
}

type ResultResponse struct {
	Handle              string              `json:"handle"`
	MatchID             string              `json:"matchId"`
	Outcome             string              `json:"outcome"`
	Totals              map[string]int      `json:"totals"`
	WinnerParticipantID *string             `json:"winnerParticipantId"`
	Rounds              []RoundMessage      `json:"rounds"`
	RankChange          *RankChangeMessage  `json:"rankChange,omitempty"`
	Display             *RankDisplayMessage `json:"display,omitempty"`
}

type GetHistoryRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

type HistoryEntryMessage struct {
	MatchID             string             `json:"matchId"`
	SeasonID            string             `json:"seasonId"`
	Status              string             `json:"status"`
	OpponentUserID      string             `json:"opponentUserId"`
	SelfTotal           int                `json:"selfTotal"`
	OpponentTotal       int                `json:"opponentTotal"`
	WinnerParticipantID *string            `json:"winnerParticipantId"`
	PlayedAt            string             `json:"playedAt"`
	RankChange          *RankChangeMessage `json:"rankChange,omitempty"`
}

type HistoryResponse struct {
	Results  []HistoryEntryMessage `json:"results"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"pageSize"`
	Total    int                   `json:"total"`
}

type GetRankChangesRequest struct {
	Limit int `json:"limit"`
}

type RankChangeEntryMessage struct {
	MatchID string `json:"matchId"`
	RankChangeMessage
	CreatedAt string `json:"createdAt"`
}

type RankChangesResponse struct {
	Changes []RankChangeEntryMessage `json:"changes"`
}

type ClaimRewardRequest struct {
	SeasonHistoryID string `json:"seasonHistoryId"`
}

func toRoundMessages(rounds []domain.Round) []RoundMessage {
	out := make([]RoundMessage, 0, len(rounds))
	for _, r := range rounds {
		msg := RoundMessage{
			Number:            int(r.Number),
			Status:            string(r.Status),
			SelectionDeadline: r.SelectionDeadline.Format(time.RFC3339),
		}
		for _, p := range r.Participants {
			msg.Participants = append(msg.Participants, RoundParticipantMessage{
				ParticipantID:  p.MatchParticipantID,
				SelectedUnitID: p.SelectedUnitID,
				PointsEarned:   p.PointsEarned,
			})
		}
		out = append(out, msg)
	}
	return out
}

func toRankChangeMessage(info domain.RankChangeInfo) *RankChangeMessage {
	if info.Classification == "" {
		return nil
	}
	return &RankChangeMessage{
		Classification: string(info.Classification),
		FromTier:       string(info.From.Tier),
		FromRating:     info.From.Rating,
		ToTier:         string(info.To.Tier),
		ToRating:       info.To.Rating,
	}
}

func toSnapshotResponse(s service.Snapshot) *SnapshotResponse {
	resp := &SnapshotResponse{
		Stage:                 string(s.Stage),
		Matchmaking:           string(s.Matchmaking),
		Membership:            string(s.Membership),
		MatchID:               s.MatchID,
		ParticipantID:         s.ParticipantID,
		OpponentID:            s.OpponentID,
		Acceptance:            string(s.Acceptance),
		AcceptanceRemainingMs: s.AcceptanceRemaining.Milliseconds(),
		Rounds:                toRoundMessages(s.Rounds),
		RoundRemainingMs:      s.RoundRemaining.Milliseconds(),
		Totals:                s.Totals,
		LeaderID:              s.LeaderID,
		ResultHandle:          s.ResultHandle,
	}
	if s.Draft != nil {
		resp.Draft = &DraftMessage{
			Picks:           s.Draft.Picks,
			ExpectedPickers: s.Draft.ExpectedPickers,
			Completed:       s.Draft.Completed,
		}
	}
	return resp
}

func toResultResponse(v service.ResultView) *ResultResponse {
	resp := &ResultResponse{
		Handle:              v.Handle,
		MatchID:             v.Match.ID,
		Outcome:             v.Outcome(),
		Totals:              v.Totals,
		WinnerParticipantID: v.WinnerParticipantID,
		Rounds:              toRoundMessages(v.Rounds),
		RankChange:          toRankChangeMessage(v.RankChange),
	}
	if resp.RankChange != nil {
		resp.Display = &RankDisplayMessage{
			Key:         v.Display.Key,
			Tier:        string(v.Display.Tier),
			RatingDelta: v.Display.RatingDelta,
			Promoted:    v.Display.Promoted,
			Demoted:     v.Display.Demoted,
		}
	}
	return resp
}

func toHistoryResponse(page *domain.HistoryPage) *HistoryResponse {
	resp := &HistoryResponse{
		Results:  make([]HistoryEntryMessage, 0, len(page.Results)),
		Page:     page.Pagination.Page,
		PageSize: page.Pagination.PageSize,
		Total:    page.Pagination.Total,
	}
	for _, e := range page.Results {
		msg := HistoryEntryMessage{
			MatchID:             e.Record.MatchID,
			SeasonID:            e.Record.SeasonID,
			Status:              string(e.Record.Status),
			OpponentUserID:      e.Record.OpponentUserID,
			SelfTotal:           e.Record.SelfTotal,
			OpponentTotal:       e.Record.OpponentTotal,
			WinnerParticipantID: e.Record.WinnerParticipantID,
			PlayedAt:            e.Record.PlayedAt.Format(time.RFC3339),
		}
		if e.RankChange != nil {
			msg.RankChange = toRankChangeMessage(*e.RankChange)
		}
		resp.Results = append(resp.Results, msg)
	}
	return resp
}
