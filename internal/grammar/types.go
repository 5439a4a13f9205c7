package grammar

import (
	"slices"

	"golang.org/x/text/language"
)

// Name tags every grammar built by this package so that loaded grammars can
// be identified in engine diagnostics.
const Name = "grammarctl"

// ChoiceGroup is one ordered slot of a grammar.
//
// A group with one phrase is a literal; with more it is a disjunction.
// An optional group may be skipped entirely by the speaker.
type ChoiceGroup struct {
	Phrases  []string `yaml:"phrases" json:"phrases"`
	Optional bool     `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// Equal reports whether two groups have the same phrases, in the same order,
// and the same optional flag.
func (g ChoiceGroup) Equal(o ChoiceGroup) bool {
	return g.Optional == o.Optional && slices.Equal(g.Phrases, o.Phrases)
}

// Clone returns a deep copy of the group.
func (g ChoiceGroup) Clone() ChoiceGroup {
	return ChoiceGroup{Phrases: slices.Clone(g.Phrases), Optional: g.Optional}
}

// GroupsEqual reports whether two group lists are element-wise equal.
func GroupsEqual(a, b []ChoiceGroup) bool {
	return slices.EqualFunc(a, b, ChoiceGroup.Equal)
}

// CloneGroups deep-copies a group list.
func CloneGroups(groups []ChoiceGroup) []ChoiceGroup {
	if groups == nil {
		return nil
	}
	out := make([]ChoiceGroup, len(groups))
	for i, g := range groups {
		out[i] = g.Clone()
	}
	return out
}

// Element is a compiled grammar slot: a phrase set occurring between Min and
// Max times. Max is always 1; Min is 0 for optional groups.
type Element struct {
	// Group is the index of the source ChoiceGroup in the Build input.
	Group int

	// Phrases holds the normalized phrases, in input order, without duplicates.
	Phrases []string

	// Indices maps each entry of Phrases to its position in the source
	// ChoiceGroup.
	Indices []int

	Min int
	Max int
}

// IsLiteral reports whether the element is a single phrase.
func (e Element) IsLiteral() bool {
	return len(e.Phrases) == 1
}

// Optional reports whether the element may be skipped.
func (e Element) Optional() bool {
	return e.Min == 0
}

// Skipped records a choice group that Build dropped.
type Skipped struct {
	Group int
	Err   error
}

// Spec is a validated grammar specification bound to one culture.
//
// INVARIANTS:
//   - len(Elements) >= 1
//   - Elements appear in the same relative order as their source groups
type Spec struct {
	Name     string
	Culture  language.Tag
	Elements []Element
	Skipped  []Skipped
}
