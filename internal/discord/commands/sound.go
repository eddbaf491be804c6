package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/voxhound/voxhound/internal/discord"
	"github.com/voxhound/voxhound/internal/session"
	"github.com/voxhound/voxhound/internal/store"
	"github.com/voxhound/voxhound/pkg/audio"
	"github.com/voxhound/voxhound/pkg/recognizer"
)

// suggestionDistance is the maximum Levenshtein distance at which a
// "did you mean" suggestion is offered for an unknown prompt.
const suggestionDistance = 3

// SoundCommands holds the dependencies for the /sound command group.
type SoundCommands struct {
	store     store.Store
	ctrl      *session.Controller
	clipDir   string
	maxUpload int64
	client    *http.Client
}

// NewSoundCommands creates a SoundCommands and registers its handlers
// with the bot's router.
func NewSoundCommands(bot *discord.Bot, st store.Store, ctrl *session.Controller, clipDir string, maxUpload int64) *SoundCommands {
	sc := &SoundCommands{
		store:     st,
		ctrl:      ctrl,
		clipDir:   clipDir,
		maxUpload: maxUpload,
		client:    http.DefaultClient,
	}
	sc.Register(bot.Router())
	return sc
}

// Register registers the /sound command group with the router.
func (sc *SoundCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("sound", sc.Definition(), func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand: `/sound add`, `/sound remove` or `/sound list`.")
	})
	router.RegisterHandler("sound/add", sc.handleAdd)
	router.RegisterHandler("sound/remove", sc.handleRemove)
	router.RegisterHandler("sound/list", sc.handleList)
	router.RegisterAutocomplete("sound/remove", sc.autocompletePrompt)
}

// Definition returns the ApplicationCommand definition for Discord.
func (sc *SoundCommands) Definition() *discordgo.ApplicationCommand {
	langChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(recognizer.Languages()))
	for _, lang := range recognizer.Languages() {
		langChoices = append(langChoices, &discordgo.ApplicationCommandOptionChoice{
			Name:  lang.String(),
			Value: lang.String(),
		})
	}

	return &discordgo.ApplicationCommand{
		Name:        "sound",
		Description: "Manage the soundboard catalog",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "add",
				Description: "Add a sound triggered by a spoken prompt",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "prompt",
						Description: "Word or phrase that triggers the sound",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "language",
						Description: "Language the prompt is spoken in",
						Required:    true,
						Choices:     langChoices,
					},
					{
						Type:        discordgo.ApplicationCommandOptionAttachment,
						Name:        "file",
						Description: "Audio clip to play (16-bit PCM WAV)",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "remove",
				Description: "Remove a sound by its prompt",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:         discordgo.ApplicationCommandOptionString,
						Name:         "prompt",
						Description:  "Prompt of the sound to remove",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "list",
				Description: "List all sounds for this server",
			},
		},
	}
}

// handleAdd handles /sound add.
func (sc *SoundCommands) handleAdd(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	opts := subcommandOptions(data)

	prompt := normalizePrompt(optionString(opts, "prompt"))
	if prompt == "" {
		discord.RespondEphemeral(s, i, "Prompt must not be empty.")
		return
	}

	lang, err := recognizer.ParseLanguage(optionString(opts, "language"))
	if err != nil {
		discord.RespondEphemeral(s, i, fmt.Sprintf("Unknown language: %v", err))
		return
	}

	att := resolveAttachment(data, opts["file"])
	if att == nil {
		discord.RespondEphemeral(s, i, "Attach an audio file.")
		return
	}
	if int64(att.Size) > sc.maxUpload {
		discord.RespondEphemeral(s, i, fmt.Sprintf("File is too large (max %d KiB).", sc.maxUpload/1024))
		return
	}
	if !strings.HasPrefix(att.ContentType, "audio") {
		discord.RespondEphemeral(s, i, "Only audio attachments are supported.")
		return
	}

	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	body, err := sc.download(ctx, att.URL)
	if err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Failed to download attachment: %v", err))
		return
	}
	if int64(len(body)) > sc.maxUpload {
		discord.FollowUp(s, i, fmt.Sprintf("File is too large (max %d KiB).", sc.maxUpload/1024))
		return
	}

	// Validate the clip up front so the playback catalog never has to
	// skip it later.
	if _, _, _, err := audio.DecodeWAV(bytes.NewReader(body)); err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Could not decode attachment as 16-bit PCM WAV: %v", err))
		return
	}

	fileName := uuid.NewString() + ".wav"
	path := filepath.Join(sc.clipDir, fileName)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Failed to store clip: %v", err))
		return
	}

	err = sc.store.AddSound(ctx, store.Sound{
		GuildID:  i.GuildID,
		Prompt:   prompt,
		Language: lang,
		FileName: fileName,
	})
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Warn("failed to remove orphaned clip", "path", path, "err", rmErr)
		}
		discord.FollowUp(s, i, fmt.Sprintf("Failed to add sound: %v", err))
		return
	}

	slog.Info("sound added", "guild", i.GuildID, "prompt", prompt, "language", lang, "file", fileName)
	sc.rebuildNotice(ctx, s, i, fmt.Sprintf("Added sound %q (%s).", prompt, lang))
}

// handleRemove handles /sound remove.
func (sc *SoundCommands) handleRemove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	opts := subcommandOptions(data)
	prompt := normalizePrompt(optionString(opts, "prompt"))

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	removed, err := sc.store.RemoveSound(ctx, i.GuildID, prompt)
	if errors.Is(err, store.ErrNotFound) {
		sounds, listErr := sc.store.ListSounds(ctx, i.GuildID)
		if listErr == nil {
			if near, ok := nearestPrompt(sounds, prompt); ok {
				discord.RespondEphemeral(s, i, fmt.Sprintf("No sound with prompt %q. Did you mean %q?", prompt, near))
				return
			}
		}
		discord.RespondEphemeral(s, i, fmt.Sprintf("No sound with prompt %q.", prompt))
		return
	}
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}

	path := filepath.Join(sc.clipDir, removed.FileName)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove clip file", "path", path, "err", err)
	}

	slog.Info("sound removed", "guild", i.GuildID, "prompt", prompt)
	sc.rebuildNotice(ctx, s, i, fmt.Sprintf("Removed sound %q.", prompt))
}

// handleList handles /sound list.
func (sc *SoundCommands) handleList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	sounds, err := sc.store.ListSounds(ctx, i.GuildID)
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondEphemeral(s, i, formatSoundList(sounds))
}

// autocompletePrompt suggests existing prompts for /sound remove.
func (sc *SoundCommands) autocompletePrompt(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	opts := subcommandOptions(data)
	partial := strings.ToLower(optionString(opts, "prompt"))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sounds, err := sc.store.ListSounds(ctx, i.GuildID)
	if err != nil {
		slog.Warn("autocomplete: list sounds", "guild", i.GuildID, "err", err)
		sounds = nil
	}

	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, snd := range sounds {
		if partial != "" && !strings.Contains(snd.Prompt, partial) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  snd.Prompt,
			Value: snd.Prompt,
		})
		if len(choices) == 25 {
			break
		}
	}

	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		slog.Warn("autocomplete: respond", "err", err)
	}
}

// rebuildNotice leaves the voice channel if connected, since the active
// catalog is built at join time, then sends the follow-up message.
func (sc *SoundCommands) rebuildNotice(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	if _, ok := sc.ctrl.Current(i.GuildID); ok {
		if err := sc.ctrl.Leave(ctx, i.GuildID); err != nil {
			slog.Warn("leave after catalog change", "guild", i.GuildID, "err", err)
		} else {
			msg += " Left the voice channel; use /join to reload the catalog."
		}
	}
	discord.FollowUp(s, i, msg)
}

func (sc *SoundCommands) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, sc.maxUpload+1))
}

// normalizePrompt lowercases and trims a prompt so catalog lookups and
// transcript matching agree on the stored form.
func normalizePrompt(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// nearestPrompt returns the catalog prompt closest to q by Levenshtein
// distance, if any is within suggestionDistance.
func nearestPrompt(sounds []store.Sound, q string) (string, bool) {
	best := ""
	bestDist := suggestionDistance + 1
	for _, snd := range sounds {
		if d := matchr.Levenshtein(snd.Prompt, q); d < bestDist {
			best = snd.Prompt
			bestDist = d
		}
	}
	return best, best != ""
}

// formatSoundList renders the catalog as a "prompt - language" code block.
func formatSoundList(sounds []store.Sound) string {
	if len(sounds) == 0 {
		return "No sounds found."
	}
	var b strings.Builder
	b.WriteString("```\n")
	for _, snd := range sounds {
		fmt.Fprintf(&b, "%s - %s\n", snd.Prompt, snd.Language)
	}
	b.WriteString("```")
	return b.String()
}

// subcommandOptions flattens the options of the invoked subcommand (or the
// top-level command when no subcommand is present) into a name-keyed map.
func subcommandOptions(data discordgo.ApplicationCommandInteractionData) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := data.Options
	if len(options) == 1 && options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		options = options[0].Options
	}
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func optionString(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	opt, ok := opts[name]
	if !ok {
		return ""
	}
	return opt.StringValue()
}

// resolveAttachment looks up an attachment option in the interaction's
// resolved data.
func resolveAttachment(data discordgo.ApplicationCommandInteractionData, opt *discordgo.ApplicationCommandInteractionDataOption) *discordgo.MessageAttachment {
	if opt == nil || data.Resolved == nil {
		return nil
	}
	id, ok := opt.Value.(string)
	if !ok {
		return nil
	}
	return data.Resolved.Attachments[id]
}
