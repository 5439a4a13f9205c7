package grammar

import (
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/grammarctl/internal/fault"
)

// ParseCulture parses a culture name such as "en-US" into a language tag.
// Fails with fault.CultureNotFound if the name is not a known BCP 47 tag.
func ParseCulture(name string) (language.Tag, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return language.Und, fault.New(fault.CultureNotFound, "parse_culture",
			"culture name is empty").WithCulture(name)
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return language.Und, &fault.Error{
			Code:    fault.CultureNotFound,
			Op:      "parse_culture",
			Culture: name,
			Message: fmt.Sprintf("culture with name %q not found", name),
			Err:     err,
		}
	}
	return tag, nil
}

// Build compiles choice groups into a Spec for the given culture.
//
// Groups the engine would reject (no phrases, or a phrase that is empty after
// trimming) are logged and skipped; the remaining groups still compile in
// order. Build fails with fault.CultureNotFound if the culture does not parse
// and with fault.EmptyGrammar if no group survives.
//
// Build is deterministic: identical inputs give identical Specs.
func Build(groups []ChoiceGroup, culture string) (*Spec, error) {
	tag, err := ParseCulture(culture)
	if err != nil {
		return nil, err
	}

	spec := &Spec{Name: Name, Culture: tag}
	for i, g := range groups {
		elem, err := compileGroup(i, g)
		if err != nil {
			slog.Warn("skipping invalid choice group",
				"group", i,
				"culture", tag.String(),
				"error", err,
			)
			spec.Skipped = append(spec.Skipped, Skipped{Group: i, Err: err})
			continue
		}
		spec.Elements = append(spec.Elements, elem)
	}

	if len(spec.Elements) == 0 {
		return nil, fault.New(fault.EmptyGrammar, "build_grammar",
			fmt.Sprintf("no valid choice groups (%d given, %d skipped)", len(groups), len(spec.Skipped)),
		).WithCulture(tag.String())
	}

	return spec, nil
}

// compileGroup validates and normalizes a single group.
func compileGroup(index int, g ChoiceGroup) (Element, error) {
	if len(g.Phrases) == 0 {
		return Element{}, fault.New(fault.InvalidGroup, "build_grammar",
			fmt.Sprintf("group %d has no phrases", index))
	}

	phrases := make([]string, 0, len(g.Phrases))
	indices := make([]int, 0, len(g.Phrases))
	seen := make(map[string]bool, len(g.Phrases))
	for j, raw := range g.Phrases {
		p := NormalizePhrase(raw)
		if p == "" {
			return Element{}, fault.New(fault.InvalidGroup, "build_grammar",
				fmt.Sprintf("group %d phrase %d is empty", index, j))
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		phrases = append(phrases, p)
		indices = append(indices, j)
	}

	minRepeat := 1
	if g.Optional {
		minRepeat = 0
	}
	return Element{Group: index, Phrases: phrases, Indices: indices, Min: minRepeat, Max: 1}, nil
}

// NormalizePhrase trims a phrase, collapses inner whitespace to single
// spaces and applies Unicode NFC normalization.
func NormalizePhrase(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
