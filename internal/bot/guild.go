package bot

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const guildCacheTTL = 5 * time.Minute

// guildCache resolves roles and channels by name. Config refers to both by
// name, so lookups are frequent.
type guildCache struct {
	mu       sync.Mutex
	api      discordAPI
	guildID  func() string
	roles    []*discordgo.Role
	channels []*discordgo.Channel
	fetched  time.Time
	now      func() time.Time
}

func newGuildCache(api discordAPI, guildID func() string) *guildCache {
	return &guildCache{api: api, guildID: guildID, now: time.Now}
}

func (g *guildCache) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetched = time.Time{}
}

func (g *guildCache) refreshLocked() error {
	if !g.fetched.IsZero() && g.now().Sub(g.fetched) < guildCacheTTL {
		return nil
	}
	id := g.guildID()
	if id == "" {
		return fmt.Errorf("guild id not configured")
	}
	roles, err := g.api.GuildRoles(id)
	if err != nil {
		return fmt.Errorf("fetch roles: %w", err)
	}
	channels, err := g.api.GuildChannels(id)
	if err != nil {
		return fmt.Errorf("fetch channels: %w", err)
	}
	g.roles, g.channels, g.fetched = roles, channels, g.now()
	return nil
}

// Role finds a role by exact name.
func (g *guildCache) Role(name string) (*discordgo.Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.refreshLocked(); err != nil {
		return nil, err
	}
	for _, r := range g.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("role %q not found", name)
}

func (g *guildCache) Roles() ([]*discordgo.Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.refreshLocked(); err != nil {
		return nil, err
	}
	return append([]*discordgo.Role(nil), g.roles...), nil
}

// TextChannel finds a text channel by name.
func (g *guildCache) TextChannel(name string) (*discordgo.Channel, error) {
	return g.channel(func(c *discordgo.Channel) bool {
		return c.Name == name && c.Type == discordgo.ChannelTypeGuildText
	}, name)
}

// Category finds a category by name, ignoring case.
func (g *guildCache) Category(name string) (*discordgo.Channel, error) {
	return g.channel(func(c *discordgo.Channel) bool {
		return c.Type == discordgo.ChannelTypeGuildCategory && strings.EqualFold(c.Name, name)
	}, name)
}

func (g *guildCache) ChannelByID(id string) (*discordgo.Channel, error) {
	return g.channel(func(c *discordgo.Channel) bool { return c.ID == id }, id)
}

func (g *guildCache) Channels() ([]*discordgo.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.refreshLocked(); err != nil {
		return nil, err
	}
	return append([]*discordgo.Channel(nil), g.channels...), nil
}

func (g *guildCache) channel(match func(*discordgo.Channel) bool, label string) (*discordgo.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.refreshLocked(); err != nil {
		return nil, err
	}
	for _, c := range g.channels {
		if match(c) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("channel %q not found", label)
}

// hasAnyRole reports whether member holds one of the named roles.
func (g *guildCache) hasAnyRole(member *discordgo.Member, names []string) bool {
	if member == nil || len(names) == 0 {
		return false
	}
	held := make(map[string]bool, len(member.Roles))
	for _, id := range member.Roles {
		held[id] = true
	}
	for _, name := range names {
		if r, err := g.Role(name); err == nil && held[r.ID] {
			return true
		}
	}
	return false
}
