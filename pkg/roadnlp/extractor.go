// Package roadnlp extracts road mentions ("King Fahd Rd NB", "highway 40")
// from free text using suffix and direction tables. No external dependencies.
package roadnlp

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Mention is one road reference found in text.
type Mention struct {
	Name       string  // canonical form, e.g. "King Fahd Rd NB"
	Direction  string  // NB, SB, EB, WB or ""
	Confidence float64 // 0.0-1.0
	Span       string  // the matched text fragment
}

// suffixAliases maps street-type words to their canonical abbreviation.
var suffixAliases = map[string]string{
	"rd": "Rd", "road": "Rd",
	"st": "St", "street": "St",
	"ave": "Ave", "av": "Ave", "avenue": "Ave",
	"hwy": "Hwy", "highway": "Hwy",
	"blvd": "Blvd", "boulevard": "Blvd",
	"expy": "Expy", "expressway": "Expy",
	"fwy": "Fwy", "freeway": "Fwy",
	"dr": "Dr", "drive": "Dr",
	"ln": "Ln", "lane": "Ln",
	"pkwy": "Pkwy", "parkway": "Pkwy",
	"tunnel": "Tunnel", "bridge": "Bridge",
}

// numberedAliases are route types usually followed by a number.
var numberedAliases = map[string]string{
	"hwy": "Hwy", "highway": "Hwy",
	"route": "Route", "rte": "Route",
	"exit": "Exit",
}

var directionAliases = map[string]string{
	"nb": "NB", "northbound": "NB", "north": "NB",
	"sb": "SB", "southbound": "SB", "south": "SB",
	"eb": "EB", "eastbound": "EB", "east": "EB",
	"wb": "WB", "westbound": "WB", "west": "WB",
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "on": true, "in": true, "at": true,
	"of": true, "to": true, "from": true, "for": true, "via": true, "and": true,
	"or": true, "is": true, "was": true, "are": true, "how": true, "what": true,
	"when": true, "which": true, "about": true, "along": true, "near": true,
	"traffic": true, "speed": true, "speeds": true, "data": true, "me": true,
	"tell": true, "show": true, "compare": true, "versus": true, "vs": true,
	"with": true, "between": true, "my": true, "i": true, "this": true, "that": true, "then": true,
	"also": true, "by": true, "into": true, "onto": true, "off": true, "during": true,
}

// maxNameWords bounds how far back from a suffix a name may extend.
const maxNameWords = 4

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'’\-]*`)

type token struct {
	text       string
	lower      string
	start, end int
}

func tokenize(text string) []token {
	locs := tokenRe.FindAllStringIndex(text, -1)
	toks := make([]token, len(locs))
	for i, l := range locs {
		t := text[l[0]:l[1]]
		toks[i] = token{text: t, lower: strings.ToLower(t), start: l[0], end: l[1]}
	}
	return toks
}

// broken reports whether punctuation separates tokens i-1 and i.
func broken(text string, toks []token, i int) bool {
	if i == 0 {
		return true
	}
	return strings.ContainsAny(text[toks[i-1].end:toks[i].start], ",;:?!()\n.")
}

// Extract finds road mentions in text, highest confidence first. Mentions
// with the same canonical name are reported once.
func Extract(text string) []Mention {
	if text == "" {
		return nil
	}
	toks := tokenize(text)
	var out []Mention
	seen := make(map[string]bool)
	add := func(m Mention) {
		key := strings.ToLower(m.Name)
		if !seen[key] {
			seen[key] = true
			out = append(out, m)
		}
	}

	for i, tk := range toks {
		if m, ok := numberedAt(text, toks, i); ok {
			add(m)
			continue
		}
		suffix, ok := suffixAliases[tk.lower]
		if !ok {
			continue
		}

		first := i
		for first > 0 && i-first < maxNameWords && !broken(text, toks, first) {
			prev := toks[first-1]
			if stopWords[prev.lower] || isSuffixWord(prev.lower) {
				break
			}
			first--
		}
		if first == i {
			continue
		}

		words := make([]string, 0, i-first+2)
		for _, w := range toks[first:i] {
			words = append(words, titleWord(w.text))
		}
		words = append(words, suffix)
		end := tk.end

		conf := 0.8
		dir := ""
		if i+1 < len(toks) && !broken(text, toks, i+1) {
			if d, ok := directionAliases[toks[i+1].lower]; ok {
				dir = d
				words = append(words, d)
				end = toks[i+1].end
				conf = 0.9
			}
		}
		add(Mention{
			Name:       strings.Join(words, " "),
			Direction:  dir,
			Confidence: conf,
			Span:       text[toks[first].start:end],
		})
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Confidence > out[b].Confidence })
	return out
}

// numberedAt matches "Highway 40", "Route 66" style mentions starting at i.
func numberedAt(text string, toks []token, i int) (Mention, bool) {
	kind, ok := numberedAliases[toks[i].lower]
	if !ok || i+1 >= len(toks) || broken(text, toks, i+1) {
		return Mention{}, false
	}
	num := toks[i+1]
	if r, _ := utf8.DecodeRuneInString(num.text); !unicode.IsDigit(r) {
		return Mention{}, false
	}
	name := kind + " " + strings.ToUpper(num.text)
	end := num.end
	dir := ""
	if i+2 < len(toks) && !broken(text, toks, i+2) {
		if d, ok := directionAliases[toks[i+2].lower]; ok {
			dir = d
			name += " " + d
			end = toks[i+2].end
		}
	}
	return Mention{Name: name, Direction: dir, Confidence: 0.7, Span: text[toks[i].start:end]}, true
}

// ExtractBest returns the single highest-confidence mention, or nil.
func ExtractBest(text string) *Mention {
	ms := Extract(text)
	if len(ms) == 0 {
		return nil
	}
	return &ms[0]
}

func isSuffixWord(lower string) bool {
	_, ok := suffixAliases[lower]
	return ok
}

// titleWord upper-cases the first letter of all-lowercase words and leaves
// mixed-case words ("McKinley", "Al-Siddiq") alone.
func titleWord(w string) string {
	if w != strings.ToLower(w) {
		return w
	}
	r, size := utf8.DecodeRuneInString(w)
	return string(unicode.ToUpper(r)) + w[size:]
}

// Normalize lowercases s, splits hyphenated words, collapses whitespace and
// rewrites street types and directions to their abbreviations, so
// "Abu-Baker Road northbound" and "abu baker rd NB" compare equal.
func Normalize(s string) string {
	var words []string
	for _, t := range tokenize(s) {
		for _, w := range strings.FieldsFunc(t.lower, isHyphen) {
			switch {
			case suffixAliases[w] != "":
				w = strings.ToLower(suffixAliases[w])
			case directionAliases[w] != "":
				w = strings.ToLower(directionAliases[w])
			}
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}

func isHyphen(r rune) bool { return r == '-' }
