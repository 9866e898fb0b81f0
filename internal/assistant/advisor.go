package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spetersoncode/tally"
	"github.com/spetersoncode/tally/internal/domain"
	"github.com/spetersoncode/tally/internal/i18n"
)

// DefaultHistory is how many recent transactions the advisor reads.
const DefaultHistory = 20

// History supplies recent ledger entries.
type History interface {
	RecentTransactions(ctx context.Context, lctx domain.LedgerContext, limit int) ([]domain.TransactionRecord, error)
}

const advisorPrompt = `You are a thoughtful spending advisor inside a group expense chat.
You see the user's message and their recent transactions.
Only speak when you notice something genuinely useful: a likely duplicate purchase,
an unusual amount, or a direct question about spending that the data can answer.
Otherwise reply with exactly %s and nothing else.
Keep any note to two short sentences, in %s.`

// Advisor writes optional spending notes.
type Advisor struct {
	llm     tally.ChatProvider
	history History
	catalog *i18n.Catalog
	limit   int
	logger  *slog.Logger
}

// NewAdvisor creates the advisor.
func NewAdvisor(llm tally.ChatProvider, h History, c *i18n.Catalog, logger *slog.Logger) *Advisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Advisor{llm: llm, history: h, catalog: c, limit: DefaultHistory, logger: logger}
}

func (a *Advisor) Name() string { return "advisor" }

// Respond returns a note, or Silent.
func (a *Advisor) Respond(ctx context.Context, req Request) (Reply, error) {
	recent, err := a.history.RecentTransactions(ctx, req.Message.Context(), a.limit)
	if err != nil {
		return Reply{}, err
	}

	var b strings.Builder
	b.WriteString("Recent transactions:\n")
	if len(recent) == 0 {
		b.WriteString("(none)\n")
	}
	for _, r := range recent {
		fmt.Fprintf(&b, "- %s %s: %s %.2f %s\n", r.Date.Format(time.DateOnly), r.ID, r.Description, r.Amount, r.Currency)
	}
	if req.Created != nil {
		desc := ""
		if req.Transaction != nil {
			desc = req.Transaction.Description
		}
		fmt.Fprintf(&b, "\nJust recorded: %s %s %.2f %s\n", req.Created.ID, desc, req.Created.Amount, req.Created.Currency)
	}
	if req.Message.HasText() {
		fmt.Fprintf(&b, "\nUser message: %s\n", req.Message.Text)
	}

	lang := a.catalog.LanguageName(req.Prefs.Language)
	msgs := []tally.Message{
		tally.SystemMessage(fmt.Sprintf(advisorPrompt, Silent, lang)),
		tally.UserMessage(b.String()),
	}
	resp, err := a.llm.Chat(ctx, msgs, tally.WithMaxTokens(300))
	if err != nil {
		return Reply{}, fmt.Errorf("assistant: advise: %w", err)
	}
	return Reply{Text: strings.TrimSpace(resp.Content)}, nil
}

var _ Assistant = (*Advisor)(nil)
