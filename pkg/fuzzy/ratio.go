package fuzzy

import (
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// Substitution costs two so the distance counts insertions and deletions only.
var indelParams = levenshtein.NewParams().SubCost(2)

const (
	unbaseScale      = 0.95
	partialScale     = 0.9
	longPartialScale = 0.6
)

func indelDistance(a, b string) int {
	return levenshtein.Distance(a, b, indelParams)
}

// normalized turns an indel distance into a 0-100 similarity.
func normalized(dist, lensum int) float64 {
	if lensum == 0 {
		return 0
	}
	return 100 * (1 - float64(dist)/float64(lensum))
}

// Ratio is the normalized indel similarity of a and b.
func Ratio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	return normalized(indelDistance(a, b), la+lb)
}

// PartialRatio scores the shorter string against its best aligned
// substring of the longer one.
func PartialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	best := partialRatioShort(ra, rb)
	if len(ra) == len(rb) && best < 100 {
		best = max(best, partialRatioShort(rb, ra))
	}
	return best
}

// partialRatioShort slides short over long, including the partial
// windows hanging off either end.
func partialRatioShort(short, long []rune) float64 {
	s := string(short)
	n := len(short)
	best := 0.0
	consider := func(window []rune) bool {
		if r := normalized(indelDistance(s, string(window)), n+len(window)); r > best {
			best = r
		}
		return best == 100
	}

	for i := 0; i+n <= len(long); i++ {
		if consider(long[i : i+n]) {
			return best
		}
	}
	for i := 1; i < n; i++ {
		if consider(long[:i]) {
			return best
		}
	}
	for i := len(long) - n + 1; i < len(long); i++ {
		if consider(long[i:]) {
			return best
		}
	}
	return best
}

// TokenSortRatio compares the strings after sorting their tokens.
func TokenSortRatio(a, b string) float64 {
	return Ratio(strings.Join(sortedTokens(a), " "), strings.Join(sortedTokens(b), " "))
}

// TokenSetRatio compares the shared tokens against each side's remainder.
// One token set contained in the other scores 100.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := make(map[string]struct{})
	diffAB := make(map[string]struct{})
	diffBA := make(map[string]struct{})
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter[tok] = struct{}{}
		} else {
			diffAB[tok] = struct{}{}
		}
	}
	for tok := range tb {
		if _, ok := ta[tok]; !ok {
			diffBA[tok] = struct{}{}
		}
	}

	if len(inter) > 0 && (len(diffAB) == 0 || len(diffBA) == 0) {
		return 100
	}

	abJoined, baJoined := joinSorted(diffAB), joinSorted(diffBA)
	abLen := utf8.RuneCountInString(abJoined)
	baLen := utf8.RuneCountInString(baJoined)
	sectLen := utf8.RuneCountInString(joinSorted(inter))

	sep := 0
	if sectLen > 0 {
		sep = 1
	}
	sectABLen := sectLen + sep + abLen
	sectBALen := sectLen + sep + baLen

	result := normalized(indelDistance(abJoined, baJoined), sectABLen+sectBALen)
	if sectLen == 0 {
		return result
	}

	// "sect" vs "sect ab" differ only by the appended remainder.
	sectABRatio := normalized(sep+abLen, sectLen+sectABLen)
	sectBARatio := normalized(sep+baLen, sectLen+sectBALen)
	return max(result, sectABRatio, sectBARatio)
}

// PartialTokenRatio is the partial-alignment analogue of the token ratios.
// Any shared token scores 100.
func PartialTokenRatio(a, b string) float64 {
	splitA, splitB := strings.Fields(a), strings.Fields(b)
	if len(splitA) == 0 || len(splitB) == 0 {
		return 0
	}
	ta, tb := tokenSet(a), tokenSet(b)

	diffAB := make(map[string]struct{})
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			return 100
		}
		diffAB[tok] = struct{}{}
	}
	diffBA := make(map[string]struct{})
	for tok := range tb {
		diffBA[tok] = struct{}{}
	}

	result := PartialRatio(strings.Join(sortedTokens(a), " "), strings.Join(sortedTokens(b), " "))
	if len(splitA) == len(diffAB) && len(splitB) == len(diffBA) {
		return result
	}
	return max(result, PartialRatio(joinSorted(diffAB), joinSorted(diffBA)))
}

// WRatio is a weighted blend of the ratio family picked by the length
// ratio of the inputs. Inputs are expected to be processed already.
func WRatio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}

	lenRatio := float64(max(la, lb)) / float64(min(la, lb))
	end := Ratio(a, b)

	if lenRatio < 1.5 {
		tokenRatio := max(TokenSortRatio(a, b), TokenSetRatio(a, b))
		return max(end, tokenRatio*unbaseScale)
	}

	scale := partialScale
	if lenRatio >= 8 {
		scale = longPartialScale
	}
	end = max(end, PartialRatio(a, b)*scale)
	return max(end, PartialTokenRatio(a, b)*unbaseScale*scale)
}
