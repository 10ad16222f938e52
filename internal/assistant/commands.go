package assistant

import (
	"slices"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Command is a local action handled without asking the LLM.
type Command int

const (
	// NoCommand means the transcript goes to the LLM.
	NoCommand Command = iota
	// Forget clears the conversation history.
	Forget
	// Weather speaks the current weather.
	Weather
)

// String returns the command name used in logs.
func (c Command) String() string {
	switch c {
	case Forget:
		return "forget"
	case Weather:
		return "weather"
	default:
		return "none"
	}
}

// DefaultMatchThreshold is the minimum Jaro-Winkler score a phonetically
// matching phrase needs. It accepts a dropped or doubled letter but not a
// different vowel in a short word ("forgot").
const DefaultMatchThreshold = 0.94

// defaultPhrases are checked in order. The first command with a phrase
// scoring above the threshold wins. Words in homophones sound like a phrase
// but are common on their own, so any n-gram containing one never matches.
var defaultPhrases = []struct {
	cmd        Command
	phrases    []string
	homophones []string
}{
	{Forget, []string{"forget", "erase memory", "erase memories"}, nil},
	{Weather, []string{"weather"}, []string{"whether"}},
}

// Matcher finds local commands in transcripts. Recognition errors are
// tolerated in two stages: Double Metaphone codes of the spoken words must
// overlap the codes of a command phrase, and the Jaro-Winkler similarity of
// the words and the phrase must reach the threshold.
//
// A Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	threshold float64
}

// NewMatcher returns a matcher. A threshold of zero or less selects
// [DefaultMatchThreshold].
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &Matcher{threshold: threshold}
}

// Match returns the command contained in text and its score.
func (m *Matcher) Match(text string) (Command, float64) {
	words := normalize(text)
	if len(words) == 0 {
		return NoCommand, 0
	}
	for _, c := range defaultPhrases {
		best := 0.0
		for _, p := range c.phrases {
			if s := m.scorePhrase(words, strings.Fields(p), c.homophones); s > best {
				best = s
			}
		}
		if best >= m.threshold {
			return c.cmd, best
		}
	}
	return NoCommand, 0
}

// scorePhrase slides over word n-grams of the phrase length and one longer,
// so that a phrase split by the recogniser ("for get") still lines up.
// N-grams containing one of skip are not scored.
func (m *Matcher) scorePhrase(words, phrase, skip []string) float64 {
	codes := codesForTokens(phrase)
	full := strings.Join(phrase, " ")
	joined := strings.Join(phrase, "")

	best := 0.0
	for n := len(phrase); n <= len(phrase)+1; n++ {
		for i := 0; i+n <= len(words); i++ {
			gram := words[i : i+n]
			if slices.ContainsFunc(gram, func(w string) bool { return slices.Contains(skip, w) }) {
				continue
			}
			if !codesOverlap(codesForTokens(gram), codes) &&
				!codesOverlap(codesForTokens([]string{strings.Join(gram, "")}), codes) {
				continue
			}
			s := matchr.JaroWinkler(strings.Join(gram, " "), full, false)
			if c := matchr.JaroWinkler(strings.Join(gram, ""), joined, false); c > s {
				s = c
			}
			if s > best {
				best = s
			}
		}
	}
	return best
}

// normalize lowercases text and splits it into words, dropping punctuation.
func normalize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
// Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
