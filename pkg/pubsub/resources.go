package pubsub

import (
	"fmt"
	"strings"
)

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

// resourceName expands a bare id into projects/<p>/<kind>/<id>. Full names
// pass through untouched; an empty id or project yields "".
func resourceName(projectID, kind, name string) string {
	id := strings.TrimSpace(name)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+kind+"/") {
		return id
	}
	project := strings.TrimSpace(projectID)
	if project == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", project, kind, id)
}

func (c *Client) resourceName(kind, name string) string {
	if c == nil {
		return ""
	}
	return resourceName(c.projectID, kind, name)
}
