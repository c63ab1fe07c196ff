package voice

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// NameResolver maps platform IDs to human-readable names for log lines.
// Lookups must be cheap; resolvers cache aggressively.
type NameResolver interface {
	UserName(userID string) string
	ChannelName(channelID string) string
}

// nameTTL controls how long a resolved name stays cached.
var nameTTL = 5 * time.Minute

type nameEntry struct {
	name   string
	expiry time.Time
}

// DiscordNames resolves names through the Discord session, preferring state
// cache over REST, with a TTL cache on top.
type DiscordNames struct {
	s *discordgo.Session

	mu       sync.Mutex
	users    map[string]nameEntry
	channels map[string]nameEntry
}

func NewDiscordNames(s *discordgo.Session) *DiscordNames {
	return &DiscordNames{
		s:        s,
		users:    make(map[string]nameEntry),
		channels: make(map[string]nameEntry),
	}
}

func (d *DiscordNames) cached(m map[string]nameEntry, id string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := m[id]
	if !ok {
		return "", false
	}
	if time.Now().After(e.expiry) {
		delete(m, id)
		return "", false
	}
	return e.name, true
}

func (d *DiscordNames) remember(m map[string]nameEntry, id, name string) string {
	d.mu.Lock()
	m[id] = nameEntry{name: name, expiry: time.Now().Add(nameTTL)}
	d.mu.Unlock()
	return name
}

func (d *DiscordNames) UserName(userID string) string {
	if d.s == nil || userID == "" {
		return ""
	}
	if name, ok := d.cached(d.users, userID); ok {
		return name
	}
	if u, err := d.s.User(userID); err == nil && u != nil {
		return d.remember(d.users, userID, u.Username)
	}
	return ""
}

func (d *DiscordNames) ChannelName(channelID string) string {
	if d.s == nil || channelID == "" {
		return ""
	}
	if name, ok := d.cached(d.channels, channelID); ok {
		return name
	}
	if d.s.State != nil {
		if c, err := d.s.State.Channel(channelID); err == nil && c != nil {
			return d.remember(d.channels, channelID, c.Name)
		}
	}
	if c, err := d.s.Channel(channelID); err == nil && c != nil {
		return d.remember(d.channels, channelID, c.Name)
	}
	return ""
}

// NopNames resolves nothing. Used in tests and when REST lookups are
// undesirable.
type NopNames struct{}

func (NopNames) UserName(string) string    { return "" }
func (NopNames) ChannelName(string) string { return "" }
