package grammar

import (
	"strings"

	"golang.org/x/text/cases"
)

// Match is an utterance accepted by a Spec.
type Match struct {
	// Text is the utterance rewritten with the grammar's own phrases,
	// skipped optional elements omitted.
	Text string

	// Choices holds, per element, the index of the matched phrase in the
	// source ChoiceGroup, or -1 when an optional element was skipped.
	Choices []int
}

// Match reports whether the utterance is accepted by the grammar.
//
// Comparison is word-based and case-insensitive (Unicode case folding).
// When several derivations exist, earlier phrases are preferred over later
// ones and taking an optional element is preferred over skipping it.
func (s *Spec) Match(utterance string) (Match, bool) {
	fold := cases.Fold()
	words := strings.Fields(fold.String(NormalizePhrase(utterance)))

	elems := make([][][]string, len(s.Elements))
	for i, e := range s.Elements {
		elems[i] = make([][]string, len(e.Phrases))
		for j, p := range e.Phrases {
			elems[i][j] = strings.Fields(fold.String(p))
		}
	}

	choices := make([]int, len(s.Elements))
	if !matchFrom(elems, s.Elements, words, 0, 0, choices) {
		return Match{}, false
	}

	parts := make([]string, 0, len(choices))
	for i, c := range choices {
		if c < 0 {
			continue
		}
		e := s.Elements[i]
		parts = append(parts, e.Phrases[c])
		if c < len(e.Indices) {
			choices[i] = e.Indices[c]
		}
	}
	return Match{Text: strings.Join(parts, " "), Choices: choices}, true
}

func matchFrom(elems [][][]string, spec []Element, words []string, ei, wi int, choices []int) bool {
	if ei == len(elems) {
		return wi == len(words)
	}
	for pi, phrase := range elems[ei] {
		if hasPrefix(words[wi:], phrase) {
			choices[ei] = pi
			if matchFrom(elems, spec, words, ei+1, wi+len(phrase), choices) {
				return true
			}
		}
	}
	if spec[ei].Optional() {
		choices[ei] = -1
		if matchFrom(elems, spec, words, ei+1, wi, choices) {
			return true
		}
	}
	return false
}

func hasPrefix(words, phrase []string) bool {
	if len(phrase) > len(words) {
		return false
	}
	for i := range phrase {
		if words[i] != phrase[i] {
			return false
		}
	}
	return true
}

// Phrases returns every distinct phrase in element order. Engines that only
// support phrase boosting (rather than strict grammars) load these.
func (s *Spec) Phrases() []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range s.Elements {
		for _, p := range e.Phrases {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
