package rating

import (
	"math"

	"github.com/park285/cheese-arena/internal/domain"
)

// KFactor is fixed for every rated game.
const KFactor = 20

// Expected returns the expected score of a player rated r against opponent.
func Expected(r, opponent int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponent-r)/400))
}

// Scores returns the actual scores of white and black for a result.
func Scores(result domain.Result) (white, black float64) {
	switch result {
	case domain.ResultWhiteWin:
		return 1, 0
	case domain.ResultBlackWin:
		return 0, 1
	default:
		return 0.5, 0.5
	}
}

// Update applies a standard Elo adjustment to both ratings.
func Update(ratingWhite, ratingBlack int, result domain.Result) (int, int) {
	sw, sb := Scores(result)
	newWhite := float64(ratingWhite) + KFactor*(sw-Expected(ratingWhite, ratingBlack))
	newBlack := float64(ratingBlack) + KFactor*(sb-Expected(ratingBlack, ratingWhite))
	return int(math.Round(newWhite)), int(math.Round(newBlack))
}
