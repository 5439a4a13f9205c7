package grammar

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// domainSpec separates grammar fingerprints from other hashes.
const domainSpec = "grammarctl/spec/v1"

// Fingerprint returns a stable content hash of the compiled grammar:
// culture, element order, phrases and occurrence bounds. Skipped groups do
// not contribute. Two Specs with equal fingerprints accept the same language.
//
// Format: SHA256(domain + 0x00 + culture + 0x00 + elements...)
func (s *Spec) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(domainSpec))
	h.Write([]byte{0x00})
	h.Write([]byte(s.Culture.String()))
	for _, e := range s.Elements {
		h.Write([]byte{0x00})
		h.Write([]byte(strconv.Itoa(e.Min) + ".." + strconv.Itoa(e.Max)))
		for _, p := range e.Phrases {
			h.Write([]byte{0x1f})
			h.Write([]byte(p))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
