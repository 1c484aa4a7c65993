package searcher

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xrash/smetrics"
)

const (
	unbaseScale  = 0.95
	partialScale = 0.9
	farScale     = 0.6
)

// WRatio scores two strings from 0 to 100. It takes the best of the plain
// ratio, token-order-insensitive ratios and, when one string is much longer,
// substring ratios, each scaled down so that an exact match always wins.
// Inputs are compared as given; callers normalize first. Lengths and edit
// distances count code points, so "número" and "numero" differ by one
// substitution.
func WRatio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}

	la, lb := float64(utf8.RuneCountInString(a)), float64(utf8.RuneCountInString(b))
	lenRatio := math.Max(la, lb) / math.Min(la, lb)

	best := ratio(a, b)
	if lenRatio < 1.5 {
		best = math.Max(best, tokenSortRatio(a, b)*unbaseScale)
		best = math.Max(best, tokenSetRatio(a, b)*unbaseScale)
		return int(math.Round(best))
	}

	scale := partialScale
	if lenRatio >= 8 {
		scale = farScale
	}
	best = math.Max(best, partialRatio(a, b)*scale)
	best = math.Max(best, partialTokenRatio(a, b)*unbaseScale*scale)
	return int(math.Round(best))
}

// ratio is the normalized indel similarity: 100 * (1 - indel / (len(a)+len(b)))
func ratio(a, b string) float64 {
	return runeRatio([]rune(a), []rune(b))
}

func runeRatio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	return 100 * (1 - float64(indel(a, b))/float64(total))
}

// indel is the insert/delete edit distance between a and b, counted in runes.
// smetrics compares bytes, so the runes are first mapped to one byte each;
// pairs with more than 256 distinct runes fall back to an LCS table.
func indel(a, b []rune) int {
	codes := make(map[rune]byte, 64)
	encode := func(rs []rune) ([]byte, bool) {
		out := make([]byte, len(rs))
		for i, r := range rs {
			c, ok := codes[r]
			if !ok {
				if len(codes) == 256 {
					return nil, false
				}
				c = byte(len(codes))
				codes[r] = c
			}
			out[i] = c
		}
		return out, true
	}

	ea, okA := encode(a)
	eb, okB := encode(b)
	if okA && okB {
		return smetrics.WagnerFischer(string(ea), string(eb), 1, 1, 2)
	}
	return len(a) + len(b) - 2*lcs(a, b)
}

func lcs(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// partialRatio is the best ratio of the shorter string against any
// same-length window of the longer one, including windows clipped at the ends.
func partialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}
	if strings.Contains(string(long), string(short)) {
		return 100
	}

	n := len(short)
	best := 0.0
	for start := -n + 1; start < len(long); start++ {
		lo, hi := max(start, 0), min(start+n, len(long))
		if hi <= lo {
			continue
		}
		if r := runeRatio(short, long[lo:hi]); r > best {
			best = r
		}
	}
	return best
}

func tokenSortRatio(a, b string) float64 {
	return ratio(sortedTokens(a), sortedTokens(b))
}

func tokenSetRatio(a, b string) float64 {
	sect, diffAB, diffBA := tokenSets(a, b)
	if sect != "" && (diffAB == "" || diffBA == "") {
		return 100
	}
	combinedAB := joinNonEmpty(sect, diffAB)
	combinedBA := joinNonEmpty(sect, diffBA)

	best := ratio(combinedAB, combinedBA)
	if sect != "" {
		best = math.Max(best, ratio(sect, combinedAB))
		best = math.Max(best, ratio(sect, combinedBA))
	}
	return best
}

func partialTokenRatio(a, b string) float64 {
	sect, diffAB, diffBA := tokenSets(a, b)
	if sect != "" {
		return 100
	}
	return math.Max(
		partialRatio(sortedTokens(a), sortedTokens(b)),
		partialRatio(diffAB, diffBA),
	)
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// tokenSets returns the sorted, space-joined intersection and both differences
func tokenSets(a, b string) (sect, diffAB, diffBA string) {
	setA := tokenSet(a)
	setB := tokenSet(b)

	var in, onlyA, onlyB []string
	for t := range setA {
		if _, ok := setB[t]; ok {
			in = append(in, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if _, ok := setA[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(in)
	sort.Strings(onlyA)
	sort.Strings(onlyB)
	return strings.Join(in, " "), strings.Join(onlyA, " "), strings.Join(onlyB, " ")
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		set[t] = struct{}{}
	}
	return set
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}
