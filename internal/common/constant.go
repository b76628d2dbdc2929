// Package common contains shared constants and sentinel errors used across
// weavesync components.
package common

// Headers of the Weave 1.1 storage protocol.
const (
	HeaderTimestamp         = "X-Weave-Timestamp"
	HeaderRecords           = "X-Weave-Records"
	HeaderBackoff           = "X-Weave-Backoff"
	HeaderIfUnmodifiedSince = "X-If-Unmodified-Since"
	HeaderConfirmDelete     = "X-Confirm-Delete"
	HeaderScriptName        = "X-Script-Name"
	HeaderScheme            = "X-Scheme"
	HeaderRequestID         = "X-Request-Id"
)

// Weave error codes returned in response bodies.
const (
	WeaveIllegalMethod     = "1"
	WeaveInvalidCaptcha    = "2"
	WeaveInvalidUser       = "3"
	WeaveInvalidWrite      = "4"
	WeaveWrongUserID       = "5"
	WeaveMalformedJSON     = "6"
	WeaveMissingPassword   = "7"
	WeaveInvalidWBO        = "8"
	WeaveWeakPassword      = "9"
	WeaveInvalidResetCode  = "10"
	WeaveUnsupportedFunc   = "11"
	WeaveNoEmailAddress    = "12"
	WeaveInvalidCollection = "13"
	WeaveOverQuota         = "14"
)
