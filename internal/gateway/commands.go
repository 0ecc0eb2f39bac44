package gateway

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// CommandInit is the name of the badge slash command.
const CommandInit = "init"

// Commands are registered with Discord once the session is ready.
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        CommandInit,
		Description: "Initialize Discord Active Developer Badge",
	},
}

const (
	embedColor = 0x5865F2

	badgeTitle       = "🏆 Active Developer Badge"
	badgeDescription = "✅ **Command executed successfully!**\n\n" +
		"**Next Steps:**\n" +
		"🕐 Wait 24-48 hours\n" +
		"🌐 Visit: https://discord.com/developers/active-developer\n" +
		"🎖️ Claim your badge\n\n" +
		"⚠️ **Reminder:** Execute monthly to maintain badge status"
	badgeFooter = "Sent by devbadge"

	guildOnlyNotice = "❌ This command must be used in a server."
)

// now is replaced in tests.
var now = time.Now

// Respond builds the ephemeral reply to an application command interaction.
// Reports false for commands this bot does not serve.
func Respond(i *discordgo.InteractionCreate, iconURL string) (*discordgo.InteractionResponse, bool) {
	if i.ApplicationCommandData().Name != CommandInit {
		return nil, false
	}

	data := &discordgo.InteractionResponseData{
		Flags: discordgo.MessageFlagsEphemeral,
	}

	if i.GuildID == "" {
		data.Content = guildOnlyNotice
	} else {
		data.Embeds = []*discordgo.MessageEmbed{badgeEmbed(iconURL)}
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, true
}

func badgeEmbed(iconURL string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       badgeTitle,
		Description: badgeDescription,
		Color:       embedColor,
		Timestamp:   now().UTC().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text:    badgeFooter,
			IconURL: iconURL,
		},
	}
}
