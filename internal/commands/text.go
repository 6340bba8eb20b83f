package commands

import (
	"fmt"
	"strings"

	"github.com/susu3304/warikan/internal/parser"
	"github.com/susu3304/warikan/internal/render"
	"github.com/susu3304/warikan/internal/settle"
)

// TextPrefix starts a channel message whose remaining lines are solved as
// one batch, e.g.
//
//	!warikan
//	<@111> spent 3000
//	<@222> gave 500 to <@111>
const TextPrefix = "!warikan"

// SettleText solves a batch written as text records and renders the plan.
// Mentions are accepted as participant names.
func SettleText(body string, f render.Formatter, strategy settle.Strategy) string {
	batch, err := parser.Parse(strings.NewReader(normalizeMentions(body)))
	if err != nil {
		return fmt.Sprintf("読み取れませんでした: %v", err)
	}
	if len(batch) == 0 {
		return "記録がありません"
	}
	plan, err := settle.SolveWith(batch, strategy)
	if err != nil {
		return fmt.Sprintf("精算できませんでした: %v", err)
	}
	f.Mention = mentionRe.MatchString(body)
	return truncate(f.PlanString(plan))
}
