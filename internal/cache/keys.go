package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func RateLimitKey(userID uuid.UUID) string {
	return fmt.Sprintf("ratelimit:%s", userID)
}

func GitHubKey(owner, repo, resource string) string {
	return fmt.Sprintf("github:%s/%s:%s", owner, repo, resource)
}
