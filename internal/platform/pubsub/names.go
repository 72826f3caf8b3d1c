package pubsub

import (
	"fmt"
	"strings"
)

// PS is a type for Pub/Sub resource types (Topic or Subscription).
type PS string

const (
	// Sub identifies a subscription resource.
	Sub PS = "subscriptions"
	// Pub identifies a topic resource.
	Pub PS = "topics"
)

// ResourceName formats a short ID into a full GCP resource name. IDs that
// are already fully qualified pass through, and an empty ID stays empty.
func ResourceName(project, id string, ps PS) string {
	if id == "" || strings.HasPrefix(id, "projects/") {
		return id
	}
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
