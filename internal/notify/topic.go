package notify

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateTopic returns a hard-to-guess ntfy topic name. Anyone who knows a
// public topic can read it.
func GenerateTopic() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "dw-" + id[:16]
}
