// Package requestid issues correlation ids for inbound requests.
package requestid

import (
	"strings"

	"github.com/google/uuid"
)

const Header = "X-Request-Id"

// New returns a fresh random id.
func New() string {
	return uuid.NewString()
}

// FromHeader returns the caller supplied id, or a fresh one.
func FromHeader(value string) string {
	if id := strings.TrimSpace(value); id != "" && len(id) <= 128 {
		return id
	}
	return New()
}
