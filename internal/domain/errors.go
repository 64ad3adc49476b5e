package domain

import "github.com/pkg/errors"

// Failure taxonomy for the synthesis pipeline. Transient errors are
// retried with backoff; invalid and permanent errors are not.
var (
	// ErrInvalid marks a request rejected before it is ever enqueued.
	ErrInvalid = errors.New("invalid request")
	// ErrRateLimited marks a 429-equivalent response from the backend.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrServer marks a 5xx-equivalent response from the backend.
	ErrServer = errors.New("provider server error")
	// ErrPermanent marks a 4xx-equivalent response: retrying cannot help.
	ErrPermanent = errors.New("provider rejected request")

	ErrJobNotFound = errors.New("job not found")
)

// IsTransient reports whether err should consume retry budget rather than
// fail the job outright.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServer)
}

func WrapInvalid(err error) error {
	return errors.Wrap(ErrInvalid, err.Error())
}
