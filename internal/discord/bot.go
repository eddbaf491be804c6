// Package discord provides the Discord bot layer for Voxhound. It owns
// the discordgo.Session lifecycle, routes slash command interactions to
// registered handlers, and surfaces guild voice-channel presence to the
// session controller.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/voxhound/voxhound/internal/config"
	"github.com/voxhound/voxhound/internal/session"
)

// Bot owns the Discord gateway connection and routes interactions
// to registered command handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	guildID   string
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
}

var _ session.Occupancy = (*Bot)(nil)

// New creates a Bot and registers the interaction handler. The gateway
// connection is established by [Bot.Open] once the rest of the process
// is wired up.
func New(cfg config.DiscordConfig) (*Bot, error) {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates

	b := &Bot{
		session: s,
		router:  NewCommandRouter(),
		guildID: cfg.GuildID,
	}

	s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})

	return b, nil
}

// Session returns the underlying discordgo session. Used by the voice
// transport and by command handlers that need direct Discord API access.
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// OnVoiceState forwards gateway voice state updates to fn, translated
// into the controller's event shape. Must be called before [Bot.Open].
func (b *Bot) OnVoiceState(fn func(session.VoiceState)) {
	b.session.AddHandler(func(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
		if vsu == nil || vsu.VoiceState == nil {
			return
		}
		ev := session.VoiceState{
			GuildID:   vsu.GuildID,
			UserID:    vsu.UserID,
			ChannelID: vsu.ChannelID,
			IsSelf:    s.State.User != nil && vsu.UserID == s.State.User.ID,
		}
		if vsu.BeforeUpdate != nil {
			ev.PrevChannelID = vsu.BeforeUpdate.ChannelID
		}
		fn(ev)
	})
}

// Open establishes the gateway connection.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	return nil
}

// Run registers slash commands with the Discord API and blocks until
// ctx is cancelled. An empty guild ID registers commands globally.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Connected reports whether the gateway handshake has completed. Used
// as a readiness check.
func (b *Bot) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session != nil && b.session.DataReady
}

// NonBotMembers counts the users connected to the given voice channel,
// excluding bot accounts and Voxhound itself. It reads the gateway state
// cache and holds no session controller locks.
func (b *Bot) NonBotMembers(guildID, channelID string) (int, error) {
	g, err := b.session.State.Guild(guildID)
	if err != nil {
		return 0, fmt.Errorf("discord: guild %s not in state: %w", guildID, err)
	}
	var selfID string
	if b.session.State.User != nil {
		selfID = b.session.State.User.ID
	}

	// Gateway events mutate the guild's voice state slice concurrently;
	// snapshot the member IDs under the state read-lock, then do the bot
	// lookups without it (State.Member re-locks internally).
	b.session.State.RLock()
	userIDs := make([]string, 0, len(g.VoiceStates))
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == channelID && vs.UserID != selfID {
			userIDs = append(userIDs, vs.UserID)
		}
	}
	b.session.State.RUnlock()

	count := 0
	for _, userID := range userIDs {
		if m, err := b.session.State.Member(guildID, userID); err == nil && m.User != nil && m.User.Bot {
			continue
		}
		count++
	}
	return count, nil
}

// Close disconnects from Discord and unregisters commands.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}
