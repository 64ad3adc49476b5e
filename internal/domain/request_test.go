package domain

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestNormalizeDefaults(t *testing.T) {
	r := Request{Text: "hello", VoiceID: "v1"}
	r.Normalize()
	assert.Equal(t, "mp3", r.Format)
	assert.Equal(t, 1.0, r.Speed)
	assert.Equal(t, string(PriorityStandard), r.Priority)
}

func TestRequestValidate(t *testing.T) {
	r := Request{Text: "hello", VoiceID: "v1"}
	r.Normalize()
	require.NoError(t, r.Validate())

	empty := Request{VoiceID: "v1"}
	empty.Normalize()
	err := empty.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))

	noVoice := Request{Text: "hello"}
	noVoice.Normalize()
	assert.Error(t, noVoice.Validate())

	badSpeed := Request{Text: "hello", VoiceID: "v1", Speed: 9}
	badSpeed.Normalize()
	assert.Error(t, badSpeed.Validate())
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrRateLimited))
	assert.True(t, IsTransient(errors.Wrap(ErrServer, "status 503")))
	assert.False(t, IsTransient(ErrPermanent))
	assert.False(t, IsTransient(errors.New("other")))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}
