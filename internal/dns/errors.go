package dns

import "errors"

// ErrCodec is a sentinel for malformed-message errors (oversized label,
// jump-limit exceeded, truncated field, bad RDATA length). In the DNS
// server path these map to FORMERR; elsewhere they propagate as a failed
// task. Wrap with fmt.Errorf("...: %w", ErrCodec) to add context.
var ErrCodec = errors.New("dns: codec error")

var (
	ErrNoQuestions     = errors.New("dns: request has no questions")
	ErrTooManyRecords  = errors.New("dns: too many records for section counts")
	ErrUnsupportedData = errors.New("dns: unsupported record data for type")
)
