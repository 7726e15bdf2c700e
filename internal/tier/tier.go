package tier

import (
	"fmt"
	"strings"

	"github.com/park285/cheese-arena/internal/domain"
)

const (
	beginnerBelow     = 10
	intermediateBelow = 30
)

// Classify maps a completed-game count to a matchmaking tier.
func Classify(completedGameCount int) domain.Tier {
	switch {
	case completedGameCount < beginnerBelow:
		return domain.TierBeginner
	case completedGameCount < intermediateBelow:
		return domain.TierIntermediate
	default:
		return domain.TierExperienced
	}
}

// Parse accepts a tier name (case-insensitive).
func Parse(s string) (domain.Tier, error) {
	switch t := domain.Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case domain.TierBeginner, domain.TierIntermediate, domain.TierExperienced:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}
