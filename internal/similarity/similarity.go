// Package similarity implements the lexical utterance scorer used by the
// tutoring engine to decide whether a learner's answer used a target
// expression.
//
// The score is a deliberately cheap bag-of-words heuristic, not edit distance
// or embedding similarity. It proceeds in two stages:
//
//  1. Containment short-circuit: both strings are normalised (punctuation
//     stripped, lowercased, trimmed). If either normalised string contains the
//     other as a substring, the score is 1.0.
//
//  2. Token overlap: otherwise both strings are tokenised on whitespace,
//     tokens of length ≤ 2 runes are discarded as stop-word noise, and the
//     score is |intersection| / max(|tokensA|, |tokensB|).
//
// Downstream thresholds (0.6 "close", 0.8 "correct") are calibrated against
// this exact tie-break, so the containment rule must always win over the
// overlap ratio.
package similarity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// defaultMinTokenLen is the rune length at or below which tokens are dropped
// before computing the overlap ratio.
const defaultMinTokenLen = 2

// Option is a functional option for configuring a [Scorer].
type Option func(*Scorer)

// WithMinTokenLength sets the rune length at or below which tokens are
// discarded before the overlap computation. Default: 2.
func WithMinTokenLength(n int) Option {
	return func(s *Scorer) {
		s.minTokenLen = n
	}
}

// Scorer computes normalised similarity scores in [0, 1] between two strings.
// All methods are safe for concurrent use — the Scorer is read-only after
// construction.
type Scorer struct {
	minTokenLen int
}

// New returns a [Scorer] configured with the supplied options.
func New(opts ...Option) *Scorer {
	s := &Scorer{minTokenLen: defaultMinTokenLen}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score returns the similarity between a and b in [0, 1].
//
// It never fails: degenerate inputs (empty strings, strings that normalise to
// nothing but stop tokens) score 0.0 via the empty-token-set path.
func (s *Scorer) Score(a, b string) float64 {
	na := Normalize(a)
	nb := Normalize(b)

	// Containment short-circuit. Empty strings are excluded first: every
	// string contains "" and that must not score 1.0.
	if na != "" && nb != "" {
		if strings.Contains(na, nb) || strings.Contains(nb, na) {
			return 1.0
		}
	}

	ta := s.tokenSet(na)
	tb := s.tokenSet(nb)
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	shared := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			shared++
		}
	}

	return float64(shared) / float64(max(len(ta), len(tb)))
}

// Normalize lowercases s, strips punctuation and symbol runes, and trims
// surrounding whitespace. Exported so the hint matcher compares the same
// canonical form the scorer does.
func Normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	return strings.TrimSpace(sb.String())
}

// tokenSet splits normalised text into whitespace-separated tokens and drops
// tokens no longer than minTokenLen runes.
func (s *Scorer) tokenSet(text string) map[string]struct{} {
	fields := strings.Fields(text)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) <= s.minTokenLen {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}
