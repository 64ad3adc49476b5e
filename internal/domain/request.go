package domain

import (
	"github.com/go-playground/validator/v10"
)

// Request carries every synthesis parameter a caller can set. SubmitterID
// is used for rate limiting only and never affects the produced audio.
type Request struct {
	Text        string  `json:"text"        validate:"required,max=5000"`
	VoiceID     string  `json:"voice_id"    validate:"required"`
	Provider    string  `json:"provider"`
	Language    string  `json:"language"`
	Style       string  `json:"style"`
	Format      string  `json:"format"      validate:"omitempty,oneof=mp3 wav ogg"`
	Speed       float64 `json:"speed"       validate:"omitempty,gte=0.25,lte=4"`
	Priority    string  `json:"priority"    validate:"omitempty,oneof=high standard batch"`
	SubmitterID string  `json:"submitter_id"`
}

var validate = validator.New()

// Normalize fills defaults for optional fields. Call before Validate so
// zero values do not trip range checks downstream.
func (r *Request) Normalize() {
	if r.Format == "" {
		r.Format = "mp3"
	}
	if r.Speed == 0 {
		r.Speed = 1.0
	}
	if r.Priority == "" {
		r.Priority = string(PriorityStandard)
	}
}

func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return WrapInvalid(err)
	}
	return nil
}
