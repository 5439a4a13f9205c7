// Package simulated provides an in-process speech recognition engine.
//
// The simulated engine has no acoustic model: utterances are injected as
// text with Say, and each loaded grammar decides whether it accepts them.
// Everything else behaves like a real engine. Events are processed by one
// worker goroutine, every callback fires on that worker, grammar updates
// are honored only on the worker's turn, and Close stops the worker.
//
// It backs the "simulated" recognizer backend, the scenario harness and
// the session tests.
package simulated
