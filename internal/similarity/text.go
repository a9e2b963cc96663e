package similarity

import (
	"math"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// NameRisk scores how closely a candidate app name imitates the official
// name, as an integer in [0, 100]. Identical strings score 100 (perfect
// imitation), completely unrelated strings score 0. Two empty strings are
// treated as no risk.
func NameRisk(candidate, official string) int {
	if candidate == "" && official == "" {
		return 0
	}

	lev := metrics.NewLevenshtein()
	score := int(math.Round(strutil.Similarity(candidate, official, lev) * 100))

	// Clamp in case a metric ever drifts out of range.
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
