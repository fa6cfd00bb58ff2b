package season

import (
	"battle-arena/internal/domain"
	"battle-arena/internal/failure"
	"battle-arena/internal/pubsub"
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrAlreadyJoined = errors.New("season already joined")
	ErrJoinInFlight  = errors.New("season join already in progress")
	ErrNotJoined     = errors.New("no active season membership")
)

type Membership string

const (
	MembershipUnknown   Membership = "UNKNOWN"
	MembershipActive    Membership = "ACTIVE"
	MembershipNotJoined Membership = "NOT_JOINED"
)

type Client interface {
	GetMembership(ctx context.Context) (*domain.Membership, error)
	JoinSeason(ctx context.Context) (*domain.SeasonJoinResult, error)
}

type Publisher interface {
	Publish(pubsub.Event)
}

// Gate must report an active membership before matchmaking is allowed.
type Gate struct {
	mu         sync.Mutex
	client     Client
	bus        Publisher
	logger     zerolog.Logger
	userID     string
	membership Membership
	season     *domain.Season
	standing   *domain.RankStanding
	joined     *domain.SeasonJoinResult
	joining    bool
}

func NewGate(client Client, bus Publisher, logger zerolog.Logger) *Gate {
	return &Gate{
		client:     client,
		bus:        bus,
		membership: MembershipUnknown,
		logger:     logger.With().Str("component", "season_gate").Logger(),
	}
}

func (g *Gate) CheckMembership(ctx context.Context, userID string) (Membership, error) {
	m, err := g.client.GetMembership(ctx)
	if err != nil {
		g.logger.Error().Err(err).Str("user_id", userID).Msg("failed to check season membership")
		return g.Membership(), err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.userID = userID
	g.season = m.Season
	g.standing = m.Standing
	if m.Active {
		g.membership = MembershipActive
	} else {
		g.membership = MembershipNotJoined
	}
	g.logger.Debug().Str("user_id", userID).Str("membership", string(g.membership)).Msg("season membership checked")
	return g.membership, nil
}

// Join creates the membership. Joining again while active is a conflict and
// leaves the existing membership untouched.
func (g *Gate) Join(ctx context.Context) (*domain.SeasonJoinResult, error) {
	const op = "joinSeason"

	g.mu.Lock()
	if g.membership == MembershipActive {
		userID := g.userID
		g.mu.Unlock()
		g.logger.Warn().Str("user_id", userID).Msg("join requested for active membership")
		return nil, failure.Conflict(op, ErrAlreadyJoined)
	}
	if g.joining {
		g.mu.Unlock()
		return nil, failure.Conflict(op, ErrJoinInFlight)
	}
	g.joining = true
	userID := g.userID
	g.mu.Unlock()

	res, err := g.client.JoinSeason(ctx)

	g.mu.Lock()
	g.joining = false
	if err != nil {
		g.mu.Unlock()
		g.logger.Error().Err(err).Str("user_id", userID).Msg("failed to join season")
		if errors.Is(err, failure.ErrConflict) {
			if _, syncErr := g.CheckMembership(ctx, userID); syncErr != nil {
				g.logger.Warn().Err(syncErr).Msg("membership resync failed")
			}
		}
		return nil, err
	}
	g.membership = MembershipActive
	g.joined = res
	g.standing = &domain.RankStanding{Tier: res.InitialRankTier, Rating: res.InitialRating}
	g.mu.Unlock()

	g.logger.Info().
		Str("user_id", userID).
		Str("season_id", res.SeasonID).
		Str("tier", string(res.InitialRankTier)).
		Int("rating", res.InitialRating).
		Msg("season joined")
	g.bus.Publish(pubsub.SeasonJoined{Result: *res})
	return res, nil
}

// Permit returns nil when matchmaking may start.
func (g *Gate) Permit() error {
	if g.Membership() != MembershipActive {
		return failure.Conflict("requestMatch", ErrNotJoined)
	}
	return nil
}

func (g *Gate) Membership() Membership {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.membership
}

func (g *Gate) Season() *domain.Season {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.season
}

func (g *Gate) Standing() *domain.RankStanding {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.standing
}

// UpdateStanding records a server-computed standing after a match.
func (g *Gate) UpdateStanding(s domain.RankStanding) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.standing = &s
}
