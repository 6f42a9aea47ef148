package domain

import "github.com/zeebo/errs"

// Error classes shared by the server and the uploader. Callers match them
// with Class.Has; the classes are never wrapped again once assigned.
var (
	// ValidationError marks bad input. Not retried.
	ValidationError = errs.Class("validation error")
	// QuotaExceededError is a business rejection the user can act on.
	QuotaExceededError = errs.Class("quota exceeded")
	// ConfigError means the server is missing secrets; fatal until fixed.
	ConfigError = errs.Class("config error")
	// TransportError covers network and storage unavailability. Safe to
	// retry the whole operation.
	TransportError = errs.Class("transport error")
	// NotFoundError is also returned for records owned by someone else.
	NotFoundError = errs.Class("not found")
)
