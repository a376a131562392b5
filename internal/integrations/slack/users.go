package slackbot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"supportbot/internal/clock"
)

const userCacheTTL = 5 * time.Minute

type cachedUser struct {
	name      string
	fetchedAt time.Time
}

// UserDirectory resolves Slack user IDs to the name people see, caching
// lookups for a few minutes.
type UserDirectory struct {
	api   *slack.Client
	clock clock.Clock

	mu    sync.Mutex
	users map[string]cachedUser
}

func NewUserDirectory(api *slack.Client, c clock.Clock) *UserDirectory {
	if c == nil {
		c = clock.Real()
	}
	return &UserDirectory{api: api, clock: c, users: make(map[string]cachedUser)}
}

// DisplayName returns the profile display name, falling back to the real
// name and then the handle. It returns "" when Slack cannot be asked.
func (d *UserDirectory) DisplayName(ctx context.Context, userID string) string {
	if d == nil || userID == "" {
		return ""
	}
	now := d.clock.Now()

	d.mu.Lock()
	if u, ok := d.users[userID]; ok && now.Sub(u.fetchedAt) < userCacheTTL {
		d.mu.Unlock()
		return u.name
	}
	d.mu.Unlock()

	user, err := d.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return ""
	}
	name := displayName(user)

	d.mu.Lock()
	d.users[userID] = cachedUser{name: name, fetchedAt: now}
	d.mu.Unlock()
	return name
}

func displayName(user *slack.User) string {
	if user == nil {
		return ""
	}
	for _, candidate := range []string{user.Profile.DisplayName, user.RealName, user.Name} {
		if c := strings.TrimSpace(candidate); c != "" {
			return c
		}
	}
	return ""
}
