package shared

import (
	"fmt"

	"github.com/google/uuid"
)

// DocumentLockKey builds the redis key guarding a single sale or purchase.
func DocumentLockKey(kind string, id uuid.UUID) string {
	return fmt.Sprintf("doc:%s:%s", kind, id)
}
