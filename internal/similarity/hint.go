package similarity

import "github.com/antzucaro/matchr"

// defaultHintThreshold is the minimum Jaro-Winkler score required for an
// expression to be offered as a hint.
const defaultHintThreshold = 0.55

// HintOption is a functional option for configuring a [Hinter].
type HintOption func(*Hinter)

// WithHintThreshold sets the minimum Jaro-Winkler score required before a
// candidate is offered as a hint. Default: 0.55.
func WithHintThreshold(threshold float64) HintOption {
	return func(h *Hinter) {
		h.threshold = threshold
	}
}

// Hinter finds the expression a learner was most plausibly attempting when no
// candidate cleared the detection threshold. It ranks candidates by
// Jaro-Winkler similarity on the normalised strings.
//
// Hints are informational only — they feed feedback text and never influence
// the engine's classification of a turn. A Hinter is read-only after
// construction and safe for concurrent use.
type Hinter struct {
	threshold float64
}

// NewHinter returns a [Hinter] configured with the supplied options.
func NewHinter(opts ...HintOption) *Hinter {
	h := &Hinter{threshold: defaultHintThreshold}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Nearest returns the candidate most similar to utterance and its score.
// matched is false when candidates is empty, the utterance normalises to
// nothing, or no candidate clears the hint threshold.
func (h *Hinter) Nearest(utterance string, candidates []string) (nearest string, score float64, matched bool) {
	nu := Normalize(utterance)
	if nu == "" || len(candidates) == 0 {
		return "", 0, false
	}

	var best string
	var bestScore float64
	for _, c := range candidates {
		nc := Normalize(c)
		if nc == "" {
			continue
		}
		if s := matchr.JaroWinkler(nu, nc, false); s > bestScore {
			best, bestScore = c, s
		}
	}

	if bestScore < h.threshold {
		return "", 0, false
	}
	return best, bestScore, true
}
