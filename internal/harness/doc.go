// Package harness provides conformance testing for grammar sessions.
//
// The harness drives a real session.Controller and cycle over the simulated
// recognizer backend, tick by tick, records every session event in an
// in-memory event log, and checks the sampled outputs and the trace.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	cultures: [en-US, de-DE]      # installed recognizers (optional)
//	update_timeout: 50ms          # rendezvous bound (optional)
//	node:
//	  culture: en-US
//	  enabled: true
//	  confidence_threshold: 0.5
//	  groups:
//	    - phrases: [turn on, turn off]
//	    - phrases: [the light]
//	      optional: true
//	steps:
//	  - expect: { state: Recognizing, grammar_loaded: true }
//	  - say: { text: "turn on the light", confidence: 0.9 }
//	    expect: { result: "turn on the light", recognized: true }
//	  - set: { culture: de-DE }
//	    ticks: 2
//	assertions:
//	  - type: trace_contains
//	    kind: recognized
//	    text: "turn on the light"
//	  - type: final_state
//	    table: sessions
//	    where: { id: "session-1" }
//	    expect: { culture: "en-US" }
//
// Each step applies, in order, its wedge flag, its configuration patch and
// its utterance, then runs its ticks (default 1). The expect clause is
// checked against the outputs sampled by the last tick of the step.
//
// # Assertion Types
//
//   - trace_contains: an event of the kind appears with matching fields
//   - trace_order: event kinds first appear in the given order
//   - trace_count: an event kind appears exactly N times
//   - final_state: queries the event log and verifies expected values
//
// # Deterministic Testing
//
// Session IDs come from a sequence generator ("session-1", "session-2"),
// timestamps from testutil.DeterministicClock, and every utterance is
// drained through the engine worker before the next tick, so identical
// scenarios produce identical traces for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/say_recognized.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
