package bot

import (
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/warikan/internal/commands"
)

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	log.Printf("%s is connected!", event.User.Username)

	// Register commands for all guilds
	for _, guild := range event.Guilds {
		if err := b.registerGuildCommands(guild.ID); err != nil {
			log.Printf("Failed to register commands for guild %s: %v", guild.ID, err)
		}
	}
}

func (b *Bot) onGuildCreate(s *discordgo.Session, event *discordgo.GuildCreate) {
	log.Printf("Guild available/joined: %s (id=%s), ensuring commands", event.Name, event.ID)
	if err := b.registerGuildCommands(event.ID); err != nil {
		log.Printf("Failed to register commands for guild %s: %v", event.ID, err)
	}
}

func (b *Bot) registerGuildCommands(guildID string) error {
	cmds := commands.GetCommands()
	// Delete existing commands and register new ones
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, guildID, cmds)
	if err != nil {
		return err
	}

	log.Printf("Registered application commands for guild %s", guildID)
	return nil
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore bot messages
	if m.Author == nil || m.Author.Bot {
		return
	}

	body, ok := textBatch(m.Content)
	if !ok {
		return
	}
	reply := commands.SettleText(body, b.format, b.strategy)
	if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
		log.Printf("Failed to reply to text batch in channel %s: %v", m.ChannelID, err)
	}
}

// textBatch extracts the record lines of a "!warikan" message.
func textBatch(content string) (string, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, commands.TextPrefix) {
		return "", false
	}
	rest := content[len(commands.TextPrefix):]
	if rest != "" && rest[0] != '\n' && rest[0] != ' ' && rest[0] != '\r' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()

	switch data.Name {
	case "warikan":
		commands.HandleWarikan(s, i, b.nomikai)
	}
}
