// Package render formats settlement results for people.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/susu3304/warikan/internal/settle"
)

// Formatter renders amounts rounded to Places with an optional currency
// Symbol. With Mention set, participant names are Discord user IDs and are
// written as mentions.
type Formatter struct {
	Symbol  string
	Places  int32
	Mention bool
}

// Amount rounds the exact amount for display. Symbols of one rune that are
// not letters are written in front ("$12.50"), others after ("500 円").
func (f Formatter) Amount(a settle.Amount) string {
	s := a.Decimal(f.Places).StringFixed(f.Places)
	switch {
	case f.Symbol == "":
		return s
	case prefixSymbol(f.Symbol):
		if strings.HasPrefix(s, "-") {
			return "-" + f.Symbol + s[1:]
		}
		return f.Symbol + s
	default:
		return s + " " + f.Symbol
	}
}

func prefixSymbol(sym string) bool {
	switch sym {
	case "$", "€", "£", "¥", "￥":
		return true
	}
	return false
}

// Name renders a participant.
func (f Formatter) Name(who string) string {
	if f.Mention {
		return fmt.Sprintf("<@%s>", who)
	}
	return who
}

// Instruction renders one instruction.
func (f Formatter) Instruction(in settle.Instruction) string {
	if f.Mention {
		return fmt.Sprintf("%s → %s: %s", f.Name(in.Payer), f.Name(in.Payee), f.Amount(in.Amount))
	}
	return fmt.Sprintf("%s pays %s to %s", in.Payer, f.Amount(in.Amount), in.Payee)
}

// Plan writes a numbered instruction list.
func (f Formatter) Plan(w io.Writer, plan settle.Plan) error {
	if len(plan) == 0 {
		_, err := fmt.Fprintln(w, "No settlement needed.")
		return err
	}
	for i, in := range plan {
		if _, err := fmt.Fprintf(w, "%d. %s\n", i+1, f.Instruction(in)); err != nil {
			return err
		}
	}
	return nil
}

// PlanString is Plan into a string.
func (f Formatter) PlanString(plan settle.Plan) string {
	var b strings.Builder
	_ = f.Plan(&b, plan)
	return b.String()
}

// Report writes totals, the fair share and each participant's balance.
func (f Formatter) Report(w io.Writer, r *settle.Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Total cost: %s\n", f.Amount(r.TotalCost))
	fmt.Fprintf(&b, "Participants: %d\n", len(r.Participants))
	fmt.Fprintf(&b, "Fair share: %s\n", f.Amount(r.Expected))
	for _, p := range r.Net {
		adjusted, _ := r.Adjusted.Get(p.Participant)
		switch p.Amount.Sign() {
		case 1:
			fmt.Fprintf(&b, "%s is owed %s (paid %s)\n", f.Name(p.Participant), f.Amount(p.Amount), f.Amount(adjusted))
		case -1:
			fmt.Fprintf(&b, "%s owes %s (paid %s)\n", f.Name(p.Participant), f.Amount(p.Amount.Neg()), f.Amount(adjusted))
		default:
			fmt.Fprintf(&b, "%s is settled (paid %s)\n", f.Name(p.Participant), f.Amount(adjusted))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Balances writes one line per debt or credit.
func (f Formatter) Balances(w io.Writer, balances []settle.Balance) error {
	if len(balances) == 0 {
		_, err := fmt.Fprintln(w, "Everyone is settled.")
		return err
	}
	for _, bal := range balances {
		if _, err := fmt.Fprintf(w, "%s: %s %s\n", f.Name(bal.Participant), bal.Role, f.Amount(bal.Amount)); err != nil {
			return err
		}
	}
	return nil
}
