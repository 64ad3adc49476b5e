package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseRequest() Request {
	return Request{
		Text:        "Cześć, jak się masz?",
		VoiceID:     "v1",
		Provider:    "acme",
		Language:    "pl",
		Style:       "neutral",
		Format:      "mp3",
		Speed:       1.0,
		SubmitterID: "user-1",
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint(baseRequest())
	b := Fingerprint(baseRequest())
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintIgnoresSubmitter(t *testing.T) {
	r1 := baseRequest()
	r2 := baseRequest()
	r2.SubmitterID = "someone-else"
	assert.Equal(t, Fingerprint(r1), Fingerprint(r2))
}

func TestFingerprintNormalizesText(t *testing.T) {
	r1 := baseRequest()
	r2 := baseRequest()
	r2.Text = "  CZEŚĆ, JAK SIĘ MASZ?  "
	assert.Equal(t, Fingerprint(r1), Fingerprint(r2))
}

func TestFingerprintRoundsSpeed(t *testing.T) {
	r1 := baseRequest()
	r1.Speed = 1.0
	r2 := baseRequest()
	r2.Speed = 1.001
	assert.Equal(t, Fingerprint(r1), Fingerprint(r2))

	r2.Speed = 1.25
	assert.NotEqual(t, Fingerprint(r1), Fingerprint(r2))
}

func TestFingerprintSensitiveToOutputParams(t *testing.T) {
	base := Fingerprint(baseRequest())

	r := baseRequest()
	r.VoiceID = "v2"
	assert.NotEqual(t, base, Fingerprint(r))

	r = baseRequest()
	r.Format = "wav"
	assert.NotEqual(t, base, Fingerprint(r))

	r = baseRequest()
	r.Style = "cheerful"
	assert.NotEqual(t, base, Fingerprint(r))
}
