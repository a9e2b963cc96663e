package similarity

import "math"

// PermissionRisk returns the Jaccard overlap of two permission sets scaled
// to [0.0, 100.0]. Clones tend to request the same permission surface as
// the app they imitate, so high overlap is a risk signal. Two empty sets
// carry no information and score 0.
func PermissionRisk(candidate, official []string) float64 {
	set := make(map[string]struct{}, len(candidate))
	for _, p := range candidate {
		if p != "" {
			set[p] = struct{}{}
		}
	}

	refSet := make(map[string]struct{}, len(official))
	for _, p := range official {
		if p != "" {
			refSet[p] = struct{}{}
		}
	}

	if len(set) == 0 && len(refSet) == 0 {
		return 0.0
	}

	intersection := 0
	for p := range set {
		if _, ok := refSet[p]; ok {
			intersection++
		}
	}
	union := len(set) + len(refSet) - intersection
	if union == 0 {
		return 0.0
	}

	return math.Round(float64(intersection)/float64(union)*100.0*100) / 100
}
