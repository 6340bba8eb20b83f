package commands

import "github.com/bwmarrin/discordgo"

func GetCommands() []*discordgo.ApplicationCommand {
	userOpt := func(desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: desc,
			Required:    true,
		}
	}
	amountOpt := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "amount",
		Description: "金額 (例: 1200, 1,200円, 12.50)",
		Required:    true,
	}
	memoOpt := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "memo",
		Description: "メモ",
		Required:    false,
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:         "warikan",
			Description:  "割り勘の記録と精算",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "start",
					Description: "このチャンネルでセッションを開始します",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "stop",
					Description: "セッションを終了します",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "join",
					Description: "参加者として登録します",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "member",
					Description: "参加者を追加します",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "users",
							Description: "追加するユーザー (メンション/ID、スペース区切り)",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "spent",
					Description: "立て替えた支出を記録します",
					Options: []*discordgo.ApplicationCommandOption{
						amountOpt,
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "payer",
							Description: "支払った人 (省略時は自分)",
						},
						memoOpt,
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "gave",
					Description: "メンバーへの直接の受け渡しを記録します",
					Options:     []*discordgo.ApplicationCommandOption{userOpt("受け取った人"), amountOpt, memoOpt},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "settle",
					Description: "精算方法を計算します",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "plans",
					Description: "精算案を複数表示します",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "limit",
							Description: "表示する案の数",
							MinValue:    floatPtr(1),
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "現在の支出状況を表示します",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "memberlist",
					Description: "参加者一覧を表示します",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "done",
					Description: "支払タスクを完了にします",
					Options:     []*discordgo.ApplicationCommandOption{userOpt("支払の相手")},
				},
			},
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func floatPtr(f float64) *float64 {
	return &f
}
