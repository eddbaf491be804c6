package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestCommandRouter_InteractionKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data discordgo.ApplicationCommandInteractionData
		want string
	}{
		{
			name: "top-level command",
			data: discordgo.ApplicationCommandInteractionData{Name: "join"},
			want: "join",
		},
		{
			name: "subcommand",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "sound",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "add", Type: discordgo.ApplicationCommandOptionSubCommand},
				},
			},
			want: "sound/add",
		},
		{
			name: "non-subcommand option does not extend key",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "join",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "channel", Type: discordgo.ApplicationCommandOptionChannel},
				},
			},
			want: "join",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := interactionKey(tt.data); got != tt.want {
				t.Errorf("interactionKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandRouter_ApplicationCommands(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	soundDef := &discordgo.ApplicationCommand{Name: "sound"}
	r.RegisterCommand("sound", soundDef, func(*discordgo.Session, *discordgo.InteractionCreate) {})
	r.RegisterHandler("sound/add", func(*discordgo.Session, *discordgo.InteractionCreate) {})
	r.RegisterHandler("sound/remove", func(*discordgo.Session, *discordgo.InteractionCreate) {})
	r.RegisterCommand("join", &discordgo.ApplicationCommand{Name: "join"}, func(*discordgo.Session, *discordgo.InteractionCreate) {})

	cmds := r.ApplicationCommands()
	if len(cmds) != 2 {
		t.Fatalf("ApplicationCommands() returned %d definitions, want 2", len(cmds))
	}
	seen := map[string]bool{}
	for _, c := range cmds {
		seen[c.Name] = true
	}
	if !seen["sound"] || !seen["join"] {
		t.Errorf("missing expected command definitions, got %v", seen)
	}
}
