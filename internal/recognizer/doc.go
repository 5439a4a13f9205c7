// Package recognizer wraps the external speech recognition engine.
//
// The engine itself (acoustic modeling, decoding, audio capture) lives behind
// the Engine and Instance interfaces; backends register themselves with
// Register and are opened by name. A Handle owns exactly one Instance bound
// to one culture and is the only way the session controller touches it.
//
// THREADING:
//
// An Instance runs its own worker goroutine and fires every callback on it.
// Grammar mutation (UnloadAllGrammars, LoadGrammar) must happen on the
// worker's turn: callers request it with RequestUpdate and perform the
// mutation from the UpdateReached callback. Handle does not synchronize this
// itself; package session layers the rendezvous on top.
package recognizer
