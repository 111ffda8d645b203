package services

import "errors"

var (
	ErrNoRows       = errors.New("no rows to submit")
	ErrEmptyResults = errors.New("cannot summarize an empty result set")
	ErrJobCanceled  = errors.New("job canceled")
	ErrInternal     = errors.New("internal error while producing results")

	ErrTooManyJobs      = errors.New("too many active jobs")
	ErrJobNotFound      = errors.New("job not found")
	ErrJobFinished      = errors.New("job already finished")
	ErrUnknownOperation = errors.New("unknown operation")
)

var ErrInvalidWebhook = errors.New("invalid webhook url")
