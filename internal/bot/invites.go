package bot

import (
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type inviteUse struct {
	uses      int
	inviterID string
}

// inviteTracker remembers invite use counts so a new member's invite can be
// found by comparing counts before and after the join.
type inviteTracker struct {
	mu    sync.Mutex
	known map[string]inviteUse
}

func newInviteTracker() *inviteTracker {
	return &inviteTracker{known: make(map[string]inviteUse)}
}

// Diff replaces the known counts with current and returns the inviter of
// the first invite whose use count grew.
func (t *inviteTracker) Diff(current []*discordgo.Invite) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	inviter := ""
	next := make(map[string]inviteUse, len(current))
	for _, inv := range current {
		if inv == nil {
			continue
		}
		use := inviteUse{uses: inv.Uses}
		if inv.Inviter != nil {
			use.inviterID = inv.Inviter.ID
		}
		next[inv.Code] = use
		if inviter != "" {
			continue
		}
		if old, ok := t.known[inv.Code]; ok && inv.Uses > old.uses {
			inviter = use.inviterID
		} else if !ok && inv.Uses > 0 && len(t.known) > 0 {
			inviter = use.inviterID
		}
	}
	t.known = next
	return inviter
}

func (t *inviteTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.known)
}

func (b *Bot) fetchInvites() ([]*discordgo.Invite, error) {
	return b.api.GuildInvites(b.guildID())
}

func (b *Bot) refreshInvites() {
	invites, err := b.fetchInvites()
	if err != nil {
		b.logger.Warn("cannot fetch invites", zap.Error(err))
		return
	}
	b.invites.Diff(invites)
	b.logger.Debug("invite cache refreshed", zap.Int("invites", b.invites.Len()))
}
