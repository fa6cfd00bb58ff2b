package service

import (
	"battle-arena/internal/domain"
	"battle-arena/internal/failure"
	"battle-arena/internal/rank"
	"errors"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

var ErrUnknownResult = errors.New("no result session for handle")

// ResultView is everything the result screen needs for one finished match.
type ResultView struct {
	Handle              string
	Match               domain.Match
	SeasonID            string
	Rounds              []domain.Round
	Totals              map[string]int
	WinnerParticipantID *string
	SelfParticipantID   string
	OpponentUserID      string
	RankChange          domain.RankChangeInfo
	Display             rank.Display
	CreatedAt           time.Time
}

// Outcome is "WIN", "LOSS" or "DRAW" from the local participant's side.
func (v ResultView) Outcome() string {
	switch {
	case v.WinnerParticipantID == nil:
		return "DRAW"
	case *v.WinnerParticipantID == v.SelfParticipantID:
		return "WIN"
	}
	return "LOSS"
}

// ResultSessions owns finished-match results from COMPLETED until the user
// acknowledges them.
type ResultSessions struct {
	mu       sync.Mutex
	sessions map[string]ResultView
	logger   zerolog.Logger
}

func NewResultSessions(logger zerolog.Logger) *ResultSessions {
	return &ResultSessions{
		sessions: map[string]ResultView{},
		logger:   logger.With().Str("component", "results").Logger(),
	}
}

func (r *ResultSessions) Create(view ResultView) (string, error) {
	handle, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate result handle: %w", err)
	}
	view.Handle = handle

	r.mu.Lock()
	r.sessions[handle] = view
	r.mu.Unlock()

	r.logger.Info().Str("handle", handle).Str("match_id", view.Match.ID).Msg("result session created")
	return handle, nil
}

func (r *ResultSessions) Get(handle string) (ResultView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	view, ok := r.sessions[handle]
	if !ok {
		return ResultView{}, failure.Conflict("getResult", ErrUnknownResult)
	}
	return view, nil
}

// Acknowledge destroys the session. The match stays reachable through
// history.
func (r *ResultSessions) Acknowledge(handle string) error {
	r.mu.Lock()
	_, ok := r.sessions[handle]
	delete(r.sessions, handle)
	r.mu.Unlock()

	if !ok {
		return failure.Conflict("acknowledgeResult", ErrUnknownResult)
	}
	r.logger.Info().Str("handle", handle).Msg("result acknowledged")
	return nil
}

func (r *ResultSessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
