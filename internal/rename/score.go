package rename

import (
	"math"

	"github.com/hlop3z/pgphase/internal/snapshot"
)

// scoreColumn computes a weighted rename confidence for a column pair.
// Weights: type match (0.4), name similarity (0.3), nullability (0.2),
// position proximity (0.1).
func scoreColumn(remote, local *snapshot.TableInfo, from, to string) float64 {
	rc, lc := remote.Columns[from], local.Columns[to]
	if rc == nil || lc == nil {
		return 0
	}

	var score float64
	if rc.DataType == lc.DataType {
		score += 0.4
	}
	score += 0.3 * JaroWinkler(from, to)
	if rc.Nullable == lc.Nullable {
		score += 0.2
	}

	if n := max(len(remote.Order), len(local.Order)); n > 0 {
		dist := math.Abs(float64(indexOf(remote.Order, from) - indexOf(local.Order, to)))
		score += 0.1 * (1.0 - math.Min(dist, float64(n))/float64(n))
	}
	return score
}

// scoreTable weighs name similarity (0.6) against shared column names (0.4).
func scoreTable(remote, local *snapshot.TableInfo) float64 {
	if remote == nil || local == nil {
		return 0
	}
	score := 0.6 * JaroWinkler(remote.Name, local.Name)

	total := max(len(remote.Columns), len(local.Columns))
	if total == 0 {
		return score
	}
	shared := 0
	for name := range local.Columns {
		if _, ok := remote.Columns[name]; ok {
			shared++
		}
	}
	return score + 0.4*float64(shared)/float64(total)
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return len(names)
}

// JaroWinkler computes the Jaro-Winkler similarity between two strings.
// Returns a value between 0.0 (no similarity) and 1.0 (identical).
func JaroWinkler(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}
	if len(s1) == 0 || len(s2) == 0 {
		return 0.0
	}

	window := max(len(s1), len(s2))/2 - 1
	if window < 0 {
		window = 0
	}

	m1 := make([]bool, len(s1))
	m2 := make([]bool, len(s2))
	matches := 0
	for i := range s1 {
		lo := max(0, i-window)
		hi := min(len(s2), i+window+1)
		for j := lo; j < hi; j++ {
			if m2[j] || s1[i] != s2[j] {
				continue
			}
			m1[i], m2[j] = true, true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := range s1 {
		if !m1[i] {
			continue
		}
		for !m2[k] {
			k++
		}
		if s1[i] != s2[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	jaro := (m/float64(len(s1)) + m/float64(len(s2)) + (m-float64(transpositions/2))/m) / 3.0

	prefix := 0
	for i := 0; i < len(s1) && i < len(s2) && i < 4 && s1[i] == s2[i]; i++ {
		prefix++
	}
	return jaro + float64(prefix)*0.1*(1.0-jaro)
}
