package fraud

import (
	"math"
	"strings"
)

// TrigramJaccard computes the Jaccard similarity of the character trigram
// sets of a and b, normalized by length ratio so a short text embedded in a
// much longer one does not read as a near-duplicate. Texts are lowercased
// and whitespace-collapsed first.
func TrigramJaccard(a, b string) float64 {
	na, nb := normalizeText(a), normalizeText(b)
	if na == nb {
		if na == "" {
			return 0
		}
		return 1
	}

	ta, tb := trigrams(na), trigrams(nb)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for g := range ta {
		if tb[g] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	jaccard := float64(intersection) / float64(union)

	la, lb := float64(len(na)), float64(len(nb))
	lengthRatio := math.Min(la, lb) / math.Max(la, lb)
	return jaccard * lengthRatio
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func trigrams(s string) map[string]bool {
	runes := []rune(s)
	out := make(map[string]bool)
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])] = true
	}
	return out
}
