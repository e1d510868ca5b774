package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a random identifier such as "sess-5f0c…".
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// Valid reports whether id was produced by New with the given prefix.
func Valid(prefix string, id string) bool {
	head := prefix + "-"
	if len(id) <= len(head) || id[:len(head)] != head {
		return false
	}
	_, err := uuid.Parse(id[len(head):])
	return err == nil
}
