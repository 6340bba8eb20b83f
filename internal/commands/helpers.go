package commands

import (
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

func respondText(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		log.Printf("warikan: failed to respond in channel %s: %v", i.ChannelID, err)
	}
}

// interactionUser is the invoking user, whether in a guild or a DM.
func interactionUser(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// options indexes a subcommand's options by name.
type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func newOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	m := make(options, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (o options) str(name string) string {
	if v, ok := o[name]; ok && v.Type == discordgo.ApplicationCommandOptionString {
		return strings.TrimSpace(v.StringValue())
	}
	return ""
}

func (o options) integer(name string) int64 {
	if v, ok := o[name]; ok && v.Type == discordgo.ApplicationCommandOptionInteger {
		return v.IntValue()
	}
	return 0
}

// user returns the selected user's ID without resolving the user.
func (o options) user(name string) string {
	if v, ok := o[name]; ok && v.Type == discordgo.ApplicationCommandOptionUser {
		return v.UserValue(nil).ID
	}
	return ""
}

var mentionRe = regexp.MustCompile(`<@!?([0-9]+)>`)

// parseMentionIDs supports <@123>, <@!123>, and raw IDs separated by spaces.
func parseMentionIDs(text string) []string {
	var ids []string
	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		if len(m) >= 2 {
			ids = append(ids, m[1])
		}
	}
	for _, tok := range strings.Fields(text) {
		if allDigits(tok) {
			ids = append(ids, tok)
		}
	}
	return unique(ids)
}

// normalizeMentions rewrites <@!123> as 123 so that text records written
// with mentions name participants by ID.
func normalizeMentions(text string) string {
	return mentionRe.ReplaceAllString(text, "$1")
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// guildID returns 0 when the interaction did not come from a guild.
func guildID(i *discordgo.InteractionCreate) int64 {
	if i.GuildID == "" {
		return 0
	}
	id, err := strconv.ParseInt(i.GuildID, 10, 64)
	if err != nil {
		log.Printf("warikan: bad guild id %q: %v", i.GuildID, err)
		return 0
	}
	return id
}
