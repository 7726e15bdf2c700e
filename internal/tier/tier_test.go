package tier

import (
	"testing"

	"github.com/park285/cheese-arena/internal/domain"
)

func TestClassifyThresholds(t *testing.T) {
	cases := []struct {
		count int
		want  domain.Tier
	}{
		{0, domain.TierBeginner},
		{9, domain.TierBeginner},
		{10, domain.TierIntermediate},
		{29, domain.TierIntermediate},
		{30, domain.TierExperienced},
		{500, domain.TierExperienced},
	}
	for _, c := range cases {
		if got := Classify(c.count); got != c.want {
			t.Fatalf("Classify(%d) = %s, want %s", c.count, got, c.want)
		}
	}
}

func TestParse(t *testing.T) {
	if got, err := Parse(" Intermediate "); err != nil || got != domain.TierIntermediate {
		t.Fatalf("Parse: got %q err=%v", got, err)
	}
	if _, err := Parse("grandmaster"); err == nil {
		t.Fatalf("expected error for unknown tier")
	}
}
