package feed

import (
	"strings"

	"example.com/livefeed/internal/models"
)

// IsOwner reports whether callerID owns post. Ids are compared after
// trimming surrounding whitespace; an empty caller owns nothing.
func IsOwner(post *models.Post, callerID string) bool {
	if post == nil {
		return false
	}
	caller := strings.TrimSpace(callerID)
	if caller == "" {
		return false
	}
	return strings.TrimSpace(post.CreatorID) == caller
}
