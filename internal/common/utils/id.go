// Package utils provides small helpers shared by the receiver packages:
// request ids, retry with backoff, extended duration parsing and nullable
// string conversion.
package utils

import (
	"github.com/google/uuid"
	"github.com/lucsky/cuid"
)

// GenerateRequestID returns an id for correlating one HTTP request across
// log lines, in the form "req-<uuid>".
func GenerateRequestID() string {
	return "req-" + uuid.NewString()
}

// GenerateRecordID returns a collision-resistant, roughly time-ordered id
// for stored rows.
func GenerateRecordID() string {
	return cuid.New()
}
