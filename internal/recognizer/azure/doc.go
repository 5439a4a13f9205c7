// Package azure registers the "azure" recognizer backend, backed by the
// Azure Cognitive Services Speech SDK.
//
// The SDK links against the native Speech runtime, so the real backend is
// only compiled with the azurespeech build tag:
//
//	go build -tags azurespeech ./cmd/grammarctl
//
// Without the tag a stub is registered that fails to open.
//
// Azure has no structured grammar loading. A loaded grammar becomes a phrase
// list that biases recognition, and every final result is matched against
// the loaded grammars locally; results no grammar accepts are reported as
// rejected.
package azure

// BackendName is the registry name of the Azure backend.
const BackendName = "azure"
