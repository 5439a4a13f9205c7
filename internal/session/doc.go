// Package session implements the grammar/recognizer session controller.
//
// The controller owns the single live recognizer Handle, (re)binds it to a
// culture, swaps grammars through the update Rendezvous and starts or stops
// continuous recognition. Engine callbacks land in a Sink, which holds the
// outputs the host samples once per evaluation cycle.
//
// THREADING:
//
// Two goroutines touch this package. The evaluation goroutine (the single
// driver) calls every Controller method. The engine worker fires Sink
// callbacks and reaches updates. The Rendezvous is the only point where the
// evaluation goroutine blocks on the worker; the Sink mutex is the only
// state shared between them.
//
// State machine:
//
//	NoEngine --reinitialize ok--> Bound --reload ok--> GrammarReady --start--> Recognizing
//	    \--reinitialize failed--> CultureRejected          ^------- stop ---------/
//
// A reload from Recognizing stops recognition first; resuming is the
// caller's job.
package session
