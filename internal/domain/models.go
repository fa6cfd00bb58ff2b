package domain

import (
	"time"
)

type Season struct {
	ID       string
	Name     string
	StartsAt time.Time
	EndsAt   time.Time
	Active   bool
}

type SeasonJoinResult struct {
	SeasonID        string
	InitialRating   int
	InitialRankTier RankTier
}

type Match struct {
	ID                  string
	Status              MatchStatus
	CreatedAt           time.Time
	AcceptanceDeadline  time.Time
	WinnerParticipantID *string
	Participants        []MatchParticipant
	Draft               DraftRules
}

type MatchParticipant struct {
	ID          string
	MatchID     string
	UserID      string
	HasAccepted bool
	JoinOrder   int
}

// DraftRules is the match metadata that drives the draft picker sequence.
type DraftRules struct {
	Mode                PickMode
	PicksPerParticipant int
	AllowDuplicates     bool
}

type Round struct {
	ID                string
	MatchID           string
	Number            RoundNumber
	Status            RoundStatus
	SelectionDeadline time.Time
	Participants      []RoundParticipant
}

type RoundParticipant struct {
	MatchParticipantID string
	SelectedUnitID     *string
	SelectionTimestamp *time.Time
	PointsEarned       int
}

type RankStanding struct {
	Tier   RankTier
	Rating int
}

type RankChangeInfo struct {
	From           RankStanding
	To             RankStanding
	Classification RankClassification
}

type Standing struct {
	UserID      string
	SeasonID    string
	SeasonName  string
	Tier        RankTier
	Rating      int
	LastFetchAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type MatchRecord struct {
	MatchID             string
	SeasonID            string
	Status              MatchStatus
	ParticipantID       string
	OpponentUserID      string
	SelfTotal           int
	OpponentTotal       int
	WinnerParticipantID *string
	PlayedAt            time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type RankChange struct {
	ID             string // nanoid
	MatchID        string
	FromTier       RankTier
	FromRating     int
	ToTier         RankTier
	ToRating       int
	Classification RankClassification
	CreatedAt      time.Time
}

type Pagination struct {
	Page     int
	PageSize int
	Total    int
}

// Participant returns the participant with the given id.
func (m *Match) Participant(id string) (MatchParticipant, bool) {
	for _, p := range m.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return MatchParticipant{}, false
}

// ParticipantForUser returns the participant that belongs to userID.
func (m *Match) ParticipantForUser(userID string) (MatchParticipant, bool) {
	for _, p := range m.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return MatchParticipant{}, false
}

// ParticipantIDs returns the two participant ids ordered by join order.
func (m *Match) ParticipantIDs() [2]string {
	var ids [2]string
	ordered := append([]MatchParticipant(nil), m.Participants...)
	if len(ordered) == 2 && ordered[1].JoinOrder < ordered[0].JoinOrder {
		ordered[0], ordered[1] = ordered[1], ordered[0]
	}
	for i := 0; i < len(ordered) && i < 2; i++ {
		ids[i] = ordered[i].ID
	}
	return ids
}

func (r *Round) Participant(id string) *RoundParticipant {
	for i := range r.Participants {
		if r.Participants[i].MatchParticipantID == id {
			return &r.Participants[i]
		}
	}
	return nil
}

// AllSelected reports whether every participant has a unit locked in.
func (r *Round) AllSelected() bool {
	for _, p := range r.Participants {
		if p.SelectedUnitID == nil {
			return false
		}
	}
	return len(r.Participants) > 0
}

// Clone returns a deep copy so callers cannot mutate engine state.
func (r Round) Clone() Round {
	out := r
	out.Participants = make([]RoundParticipant, len(r.Participants))
	for i, p := range r.Participants {
		cp := p
		if p.SelectedUnitID != nil {
			unit := *p.SelectedUnitID
			cp.SelectedUnitID = &unit
		}
		if p.SelectionTimestamp != nil {
			ts := *p.SelectionTimestamp
			cp.SelectionTimestamp = &ts
		}
		out.Participants[i] = cp
	}
	return out
}
