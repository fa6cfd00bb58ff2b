package rank

import (
	"battle-arena/internal/domain"
	"errors"
	"fmt"
)

var ErrUnknownTier = errors.New("unknown rank tier")

// tiers in ascending order.
var tiers = []domain.RankTier{
	domain.TierN5,
	domain.TierN4,
	domain.TierN3,
	domain.TierN2,
	domain.TierN1,
}

// Ordinal returns the position of tier in the ascending tier order.
func Ordinal(tier domain.RankTier) (int, error) {
	for i, t := range tiers {
		if t == tier {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
}

// Classify interprets a server-computed rank transition. Rating movement
// inside a tier never changes the classification.
func Classify(from, to domain.RankStanding) (domain.RankChangeInfo, error) {
	fromOrd, err := Ordinal(from.Tier)
	if err != nil {
		return domain.RankChangeInfo{}, err
	}
	toOrd, err := Ordinal(to.Tier)
	if err != nil {
		return domain.RankChangeInfo{}, err
	}

	info := domain.RankChangeInfo{From: from, To: to, Classification: domain.RankMaintain}
	switch {
	case toOrd > fromOrd:
		info.Classification = domain.RankUp
	case toOrd < fromOrd:
		info.Classification = domain.RankDown
	}
	return info, nil
}

type Display struct {
	Key         string
	Tier        domain.RankTier
	RatingDelta int
	Promoted    bool
	Demoted     bool
}

// DisplayFor builds the presentation payload. Key is a localization key, the
// text itself belongs to the presentation layer.
func DisplayFor(info domain.RankChangeInfo) Display {
	d := Display{
		Tier:        info.To.Tier,
		RatingDelta: info.To.Rating - info.From.Rating,
	}
	switch info.Classification {
	case domain.RankUp:
		d.Key, d.Promoted = "rank.up", true
	case domain.RankDown:
		d.Key, d.Demoted = "rank.down", true
	default:
		d.Key = "rank.maintain"
	}
	return d
}
