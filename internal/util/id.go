package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random UUIDv4 in compact hex form, prefixed when prefix is set.
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
