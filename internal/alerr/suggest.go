package alerr

import "fmt"

// maxSuggestDistance catches a missing, extra or swapped character without
// matching unrelated names.
const maxSuggestDistance = 3

func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return len(b)
	}
	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// ClosestName returns the option nearest to input by edit distance.
func ClosestName(input string, options []string) (string, bool) {
	best := ""
	bestDist := maxSuggestDistance + 1
	for _, opt := range options {
		if d := editDistance(input, opt); d < bestDist {
			best, bestDist = opt, d
		}
	}
	return best, bestDist <= maxSuggestDistance
}

// SuggestSimilar returns "did you mean 'x'?" or an empty string.
func SuggestSimilar(input string, options []string) string {
	if match, ok := ClosestName(input, options); ok {
		return fmt.Sprintf("did you mean '%s'?", match)
	}
	return ""
}
