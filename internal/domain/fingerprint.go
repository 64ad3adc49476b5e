package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fingerprint digests every output-affecting request parameter into a
// stable hex key. Text is NFC-normalized, trimmed and case-folded; speed is
// rounded to two decimals so 1.0 and 1.00 collide. Submitter id, timestamps
// and the like are deliberately excluded: equal audio means equal key.
func Fingerprint(r Request) string {
	// cases.Caser is stateful, build one per call
	text := cases.Fold().String(norm.NFC.String(strings.TrimSpace(r.Text)))
	material := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%.2f",
		text, r.VoiceID, r.Provider, r.Language, r.Style, r.Format, r.Speed)
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}
