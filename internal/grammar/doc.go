// Package grammar compiles an ordered list of choice groups into a validated
// grammar specification.
//
// A ChoiceGroup is one slot of the grammar: a single phrase (a literal) or a
// disjunction over several phrases, optionally skippable. Build appends the
// surviving groups in order, so recognized text always follows group order:
//
//	groups := []grammar.ChoiceGroup{
//	    {Phrases: []string{"turn"}},
//	    {Phrases: []string{"the"}, Optional: true},
//	    {Phrases: []string{"light", "lamp"}},
//	    {Phrases: []string{"on", "off"}},
//	}
//	spec, err := grammar.Build(groups, "en-US")
//	// spec accepts "turn light on", "turn the lamp off", ...
//
// The package is pure: no I/O, no goroutines, no engine interaction. Engines
// turn a Spec into their own loadable artifact (see package recognizer).
package grammar
