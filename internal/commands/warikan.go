package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/nomikai"
	"github.com/susu3304/warikan/internal/parser"
)

// invocation is one /warikan subcommand call.
type invocation struct {
	ctx       context.Context
	svc       *nomikai.Service
	channelID string
	userID    string
	guildID   int64
	opts      options
}

type subcommand func(inv invocation) (string, error)

var subcommands = map[string]subcommand{
	"start":      startCmd,
	"stop":       stopCmd,
	"join":       joinCmd,
	"member":     memberCmd,
	"spent":      spentCmd,
	"gave":       gaveCmd,
	"settle":     settleCmd,
	"plans":      plansCmd,
	"status":     statusCmd,
	"memberlist": memberListCmd,
	"done":       doneCmd,
}

// errReply carries a message meant for the user rather than the log.
type errReply string

func (e errReply) Error() string { return string(e) }

func HandleWarikan(s *discordgo.Session, i *discordgo.InteractionCreate, svc *nomikai.Service) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		respondText(s, i, "サブコマンドが指定されていません")
		return
	}
	sub := data.Options[0]
	run, ok := subcommands[sub.Name]
	if !ok {
		respondText(s, i, "未知のサブコマンドです")
		return
	}

	msg, err := run(invocation{
		ctx:       context.Background(),
		svc:       svc,
		channelID: i.ChannelID,
		userID:    interactionUser(i),
		guildID:   guildID(i),
		opts:      newOptions(sub.Options),
	})
	if err != nil {
		var reply errReply
		if !errors.As(err, &reply) {
			log.Printf("warikan %s in channel %s: %v", sub.Name, i.ChannelID, err)
		}
		msg = err.Error()
	}
	respondText(s, i, truncate(msg))
}

func startCmd(inv invocation) (string, error) {
	n, err := inv.svc.StartSession(inv.ctx, inv.guildID, inv.channelID, inv.userID)
	if err != nil {
		return "", err
	}
	msg := "このチャンネルでセッションを開始しました"
	if n > 0 {
		msg += fmt.Sprintf("\n保存済みの記録 %d 件を復元しました", n)
	}
	return msg, nil
}

func stopCmd(inv invocation) (string, error) {
	if err := inv.svc.StopSession(inv.ctx, inv.channelID); err != nil {
		return "", err
	}
	return "セッションを終了しました", nil
}

func joinCmd(inv invocation) (string, error) {
	joined, err := inv.svc.Join(inv.ctx, inv.channelID, inv.userID, inv.userID)
	if err != nil {
		return "", err
	}
	if !joined {
		return "既に参加しています", nil
	}
	return "参加者として登録しました", nil
}

func memberCmd(inv invocation) (string, error) {
	ids := parseMentionIDs(inv.opts.str("users"))
	if len(ids) == 0 {
		return "", errReply("ユーザーのメンション/IDを認識できませんでした")
	}
	var added []string
	for _, id := range ids {
		joined, err := inv.svc.Join(inv.ctx, inv.channelID, id, inv.userID)
		if err != nil {
			return "", err
		}
		if joined {
			added = append(added, id)
		}
	}
	if len(added) == 0 {
		return "全員が既に参加しています", nil
	}
	return fmt.Sprintf("%s を参加者に追加しました", mentions(added)), nil
}

func spentCmd(inv invocation) (string, error) {
	amount, err := inv.opts.amount()
	if err != nil {
		return "", err
	}
	payer := inv.opts.user("payer")
	if payer == "" {
		payer = inv.userID
	}
	memo := inv.opts.str("memo")
	joined, err := inv.svc.AddSpent(inv.ctx, inv.channelID, payer, amount, memo, inv.userID)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("<@%s> の支出 %s を記録しました", payer, amount)
	if memo != "" {
		msg += fmt.Sprintf(" (%s)", memo)
	}
	if joined {
		msg += "\nこのユーザーを参加登録しました"
	}
	return msg, nil
}

func gaveCmd(inv invocation) (string, error) {
	receiver := inv.opts.user("user")
	if receiver == "" {
		return "", errReply("受け取った人の指定が必要です")
	}
	amount, err := inv.opts.amount()
	if err != nil {
		return "", err
	}
	joined, err := inv.svc.AddGave(inv.ctx, inv.channelID, inv.userID, receiver, amount, inv.opts.str("memo"), inv.userID)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("<@%s> → <@%s> %s を記録しました", inv.userID, receiver, amount)
	if len(joined) > 0 {
		msg += "\n参加登録: " + mentions(joined)
	}
	return msg, nil
}

func settleCmd(inv invocation) (string, error) {
	res, err := inv.svc.Settle(inv.ctx, inv.channelID)
	if err != nil {
		return "", err
	}
	return res.Summary, nil
}

// Discord drops an interaction that is not answered within three seconds.
const plansTimeout = 2 * time.Second

func plansCmd(inv invocation) (string, error) {
	ctx, cancel := context.WithTimeout(inv.ctx, plansTimeout)
	defer cancel()
	res, err := inv.svc.Plans(ctx, inv.channelID, int(inv.opts.integer("limit")))
	if err != nil {
		return "", err
	}
	return res.Summary, nil
}

func statusCmd(inv invocation) (string, error) {
	return inv.svc.Status(inv.channelID)
}

func memberListCmd(inv invocation) (string, error) {
	ids, err := inv.svc.Members(inv.channelID)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "参加者がいません", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "参加者 (%d名):\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(&b, "・<@%s>\n", id)
	}
	return b.String(), nil
}

func doneCmd(inv invocation) (string, error) {
	other := inv.opts.user("user")
	if other == "" {
		return "", errReply("相手の指定が必要です")
	}
	return inv.svc.CompleteTask(inv.ctx, inv.channelID, inv.userID, other)
}

// amount reads the required "amount" option.
func (o options) amount() (decimal.Decimal, error) {
	raw, ok := o["amount"]
	if !ok {
		return decimal.Zero, errReply("金額の指定が必要です")
	}
	d, err := parser.ParseAmount(raw.StringValue())
	if err != nil {
		return decimal.Zero, errReply(fmt.Sprintf("金額を認識できませんでした: %s", raw.StringValue()))
	}
	return d, nil
}

func mentions(ids []string) string {
	parts := make([]string, len(ids))
	for idx, id := range ids {
		parts[idx] = fmt.Sprintf("<@%s>", id)
	}
	return strings.Join(parts, ", ")
}

// Discord rejects message content above 2000 characters.
const maxMessageLen = 2000

func truncate(msg string) string {
	r := []rune(msg)
	if len(r) <= maxMessageLen {
		return msg
	}
	cut := string(r[:maxMessageLen-2])
	if idx := strings.LastIndex(cut, "\n"); idx > 0 {
		cut = cut[:idx+1]
	}
	return cut + "…"
}
