// Package commands implements Discord slash command handlers for Voxhound.
package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/voxhound/voxhound/internal/discord"
	"github.com/voxhound/voxhound/internal/session"
)

// joinTimeout bounds how long a voice handshake may take before the
// command reports failure.
const joinTimeout = 30 * time.Second

// VoiceCommands holds the dependencies for the /join, /leave and /ping
// commands.
type VoiceCommands struct {
	ctrl *session.Controller
}

// NewVoiceCommands creates a VoiceCommands and registers its handlers
// with the bot's router.
func NewVoiceCommands(bot *discord.Bot, ctrl *session.Controller) *VoiceCommands {
	vc := &VoiceCommands{ctrl: ctrl}
	vc.Register(bot.Router())
	return vc
}

// Register registers the voice commands with the router.
func (vc *VoiceCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("join", &discordgo.ApplicationCommand{
		Name:        "join",
		Description: "Join your current voice channel and start listening",
	}, vc.handleJoin)
	router.RegisterCommand("leave", &discordgo.ApplicationCommand{
		Name:        "leave",
		Description: "Leave the voice channel",
	}, vc.handleLeave)
	router.RegisterCommand("ping", &discordgo.ApplicationCommand{
		Name:        "ping",
		Description: "Check that the bot is alive",
	}, vc.handlePing)
}

// handleJoin handles /join.
func (vc *VoiceCommands) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	guildID := i.GuildID
	userID := interactionUserID(i)

	vs, err := s.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		discord.RespondEphemeral(s, i, "Not in a voice channel.")
		return
	}

	if current, ok := vc.ctrl.Current(guildID); ok && current == vs.ChannelID {
		discord.RespondEphemeral(s, i, "Already in your channel.")
		return
	}

	// Joining loads the catalog and builds recognizers; defer the reply.
	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	if err := vc.ctrl.Join(ctx, guildID, vs.ChannelID); err != nil {
		if errors.Is(err, session.ErrAlreadyConnected) {
			discord.FollowUp(s, i, "Already in your channel.")
			return
		}
		if errors.Is(err, session.ErrJoinInProgress) {
			discord.FollowUp(s, i, "Already joining a voice channel, try again in a moment.")
			return
		}
		discord.FollowUp(s, i, fmt.Sprintf("Failed to join: %v", err))
		return
	}

	discord.FollowUp(s, i, fmt.Sprintf("Joined <#%s>", vs.ChannelID))
}

// handleLeave handles /leave.
func (vc *VoiceCommands) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	if err := vc.ctrl.Leave(ctx, i.GuildID); err != nil {
		if errors.Is(err, session.ErrNotConnected) {
			discord.RespondEphemeral(s, i, "Not in a voice channel.")
			return
		}
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondEphemeral(s, i, "Left the voice channel.")
}

// handlePing handles /ping.
func (vc *VoiceCommands) handlePing(s *discordgo.Session, i *discordgo.InteractionCreate) {
	discord.RespondEphemeral(s, i, "Pong!")
}

// interactionUserID extracts the user ID from an interaction, handling
// both guild (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
