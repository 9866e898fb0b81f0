package i18n

import (
	"strings"

	"github.com/spetersoncode/tally/internal/domain"
)

// Recorded renders the confirmation for a created transaction, with a
// per-person line when it was split.
func (c *Catalog) Recorded(lang, description string, tx domain.CreatedTransaction) string {
	msg := c.T(lang, ReplyRecorded, description, c.Amount(lang, tx.Amount, tx.Currency), tx.ID)
	if n := len(tx.Splits); n > 1 {
		msg += "\n" + c.T(lang, ReplyRecordedSplit, n, c.Amount(lang, tx.Amount/float64(n), tx.Currency))
	}
	return msg
}

// Welcome returns the greeting for a new source or user, or "".
func (c *Catalog) Welcome(lang string, init domain.SourceInit) string {
	switch {
	case init.IsNewSource:
		return c.T(lang, ReplyWelcomeSource)
	case init.IsNewUser:
		return c.T(lang, ReplyWelcomeUser)
	default:
		return ""
	}
}

// Balances renders one line per member.
func (c *Catalog) Balances(lang string, balances []domain.Balance) string {
	if len(balances) == 0 {
		return c.T(lang, ReplyBalanceEmpty)
	}
	lines := []string{c.T(lang, ReplyBalanceHeader)}
	for _, b := range balances {
		lines = append(lines, c.T(lang, ReplyBalanceLine, b.Name, c.Amount(lang, b.Net, b.Currency)))
	}
	return strings.Join(lines, "\n")
}

// Settlements renders one line per suggested payment.
func (c *Catalog) Settlements(lang string, settlements []domain.Settlement) string {
	if len(settlements) == 0 {
		return c.T(lang, ReplySettlementEmpty)
	}
	lines := []string{c.T(lang, ReplySettlementHeader)}
	for _, s := range settlements {
		lines = append(lines, c.T(lang, ReplySettlementLine, s.From, s.To, c.Amount(lang, s.Amount, s.Currency)))
	}
	return strings.Join(lines, "\n")
}

// Prompt returns the clarifying question for the first blocking field.
func (c *Catalog) Prompt(lang string, tx domain.ParsedTransaction, missing []string) string {
	has := func(f string) bool {
		for _, m := range missing {
			if m == f {
				return true
			}
		}
		return false
	}
	switch {
	case has(domain.FieldAmount) && has(domain.FieldDescription):
		return c.T(lang, PromptWhatAndHowMuch)
	case has(domain.FieldAmount):
		return c.T(lang, PromptHowMuch, tx.Description)
	case has(domain.FieldDescription):
		return c.T(lang, PromptWhatFor, c.Amount(lang, tx.Amount, tx.Currency))
	case has(domain.FieldSplit):
		return c.T(lang, PromptSplitWithWhom, c.Amount(lang, tx.Amount, tx.Currency))
	default:
		return ""
	}
}
