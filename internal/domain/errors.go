package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidContext   = errors.New("invalid context: values must be render-safe")
	ErrRender           = errors.New("render: no usable template")
	ErrConfig           = errors.New("config: 'now' and 'queue' cannot both be set")
	ErrTransport        = errors.New("mail transport failed")
	ErrPersistence      = errors.New("persistence failed")
	ErrInvalidLabel     = errors.New("label must be 1-40 characters")
	ErrInvalidMedium    = errors.New("invalid medium: must be site or email")
	ErrInvalidFrequency = errors.New("invalid frequency: must be immediate, site_only, email_only, or never")
	ErrInvalidRef       = errors.New("ref must have a kind and an id")
)
