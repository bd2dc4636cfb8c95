package resolve

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/WessleyAI/roadwise/pkg/roadnlp"
	"github.com/agnivade/levenshtein"
)

// DefaultFuzzyCutoff is the minimum similarity Fuzzy accepts.
const DefaultFuzzyCutoff = 0.6

// Fuzzy picks the single vocabulary name closest to the query by normalized
// edit distance. It calls no external service and applies no score
// threshold beyond Cutoff.
type Fuzzy struct {
	Vocabulary Vocabulary
	Cutoff     float64
}

// Resolve implements Resolver. It returns at most one name; ties go to the
// earlier vocabulary entry.
func (f *Fuzzy) Resolve(_ context.Context, query string) ([]string, error) {
	cutoff := f.Cutoff
	if cutoff <= 0 {
		cutoff = DefaultFuzzyCutoff
	}
	cands := candidates(query)
	if len(cands) == 0 {
		return nil, nil
	}

	best, bestScore := "", -1.0
	for _, name := range f.Vocabulary.RoadNames() {
		n := roadnlp.Normalize(name)
		if n == "" {
			continue
		}
		words := len(strings.Fields(n))
		for _, c := range cands {
			if !c.fits(words) {
				continue
			}
			if s := Similarity(n, c.text); s > bestScore {
				best, bestScore = name, s
			}
		}
	}
	if bestScore < cutoff {
		return nil, nil
	}
	return []string{best}, nil
}

type candidate struct {
	text  string
	words int // 0 means compare against any name length
}

func (c candidate) fits(nameWords int) bool {
	return c.words == 0 || c.words == nameWords
}

// candidates returns the normalized query, the extracted road mentions, and
// every run of 1 to 6 consecutive query words.
func candidates(query string) []candidate {
	nq := roadnlp.Normalize(query)
	if nq == "" {
		return nil
	}
	out := []candidate{{text: nq}}
	for _, m := range roadnlp.Extract(query) {
		out = append(out, candidate{text: roadnlp.Normalize(m.Name)})
	}
	words := strings.Fields(nq)
	for n := 1; n <= 6 && n <= len(words); n++ {
		for i := 0; i+n <= len(words); i++ {
			out = append(out, candidate{text: strings.Join(words[i:i+n], " "), words: n})
		}
	}
	return out
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
