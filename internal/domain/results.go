package domain

import "time"

type MatchFound struct {
	Match       Match
	MatchID     string
	Participant MatchParticipant
	Opponent    MatchParticipant
}

type MatchmakingFailed struct {
	Reason string
}

type MatchStatusUpdate struct {
	MatchID string
	Status  MatchStatus
	Message string
}

type RoundState struct {
	Match  Match
	Rounds []Round
}

type Membership struct {
	Active   bool
	Season   *Season
	Standing *RankStanding
}

type HistoryEntry struct {
	Record     MatchRecord
	RankChange *RankChangeInfo
}

type HistoryPage struct {
	Results    []HistoryEntry
	Pagination Pagination
}

// MatchResult carries the server-computed standings around a finished match.
type MatchResult struct {
	Match    Match
	Rounds   []Round
	RankFrom RankStanding
	RankTo   RankStanding
}

type DraftPick struct {
	ParticipantID string
	UnitID        string
	PickedAt      time.Time
}
