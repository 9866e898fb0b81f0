package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spetersoncode/tally"
	"github.com/spetersoncode/tally/client"
	"github.com/spetersoncode/tally/internal/domain"
	"github.com/spetersoncode/tally/internal/i18n"
	"github.com/spetersoncode/tally/internal/ledger"
	"github.com/spetersoncode/tally/internal/parse"
)

// Ledger is the part of the ledger API the primary assistant uses.
type Ledger interface {
	CreateTransaction(ctx context.Context, req ledger.CreateRequest) (domain.CreatedTransaction, error)
	GetBalances(ctx context.Context, lctx domain.LedgerContext) ([]domain.Balance, error)
	GetSettlements(ctx context.Context, lctx domain.LedgerContext) ([]domain.Settlement, error)
}

var transactionSchema = tally.SchemaOf[extracted]().
	Describe("description", "Short name of what was bought").
	Describe("amount", "Total paid").
	Describe("currency", "ISO 4217 code, empty if unknown").
	Response("transaction", "A purchase described by the user")

const extractPrompt = `Extract the purchase from the user's message or photo.
description is a short name of what was bought. amount is the total paid.
currency is an ISO 4217 code, or an empty string if unknown.
category is one of: food, groceries, transport, shopping, utilities, entertainment, health, travel, other.
Use an empty string or 0 for anything you cannot tell.`

const chatPrompt = `You are tally, a friendly assistant that records shared expenses in chat.
Answer briefly in %s. If the user seems to describe a purchase, ask them to send it like "coffee 65".`

type extracted struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Category    string  `json:"category"`
}

// Primary records transactions and answers ledger queries.
type Primary struct {
	llm     tally.ChatProvider
	ledger  Ledger
	parser  *parse.Parser
	catalog *i18n.Catalog
	logger  *slog.Logger
}

// NewPrimary creates the primary assistant.
func NewPrimary(llm tally.ChatProvider, l Ledger, p *parse.Parser, c *i18n.Catalog, logger *slog.Logger) *Primary {
	if logger == nil {
		logger = slog.Default()
	}
	return &Primary{llm: llm, ledger: l, parser: p, catalog: c, logger: logger}
}

func (p *Primary) Name() string { return "primary" }

// Respond answers req according to its intent.
func (p *Primary) Respond(ctx context.Context, req Request) (Reply, error) {
	lang := req.Prefs.Language
	lctx := req.Message.Context()

	switch req.Intent {
	case IntentBalance:
		b, err := p.ledger.GetBalances(ctx, lctx)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Text: p.catalog.Balances(lang, b)}, nil
	case IntentSettlement:
		s, err := p.ledger.GetSettlements(ctx, lctx)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Text: p.catalog.Settlements(lang, s)}, nil
	case IntentHelp:
		return Reply{Text: p.catalog.T(lang, i18n.ReplyHelp)}, nil
	case IntentTransaction:
		return p.record(ctx, req)
	default:
		return p.chat(ctx, req)
	}
}

func (p *Primary) record(ctx context.Context, req Request) (Reply, error) {
	lang := req.Prefs.Language
	tx := p.parser.ParseFor(req.Message.Text, req.Prefs).Transaction()

	if req.Message.HasImage() || !tx.Creatable() {
		ex, err := p.extract(ctx, req.Message)
		if err != nil {
			return Reply{}, err
		}
		tx = tx.Merge(domain.ParsedTransaction{
			Description: ex.Description,
			Amount:      ex.Amount,
			Currency:    strings.ToUpper(ex.Currency),
			Category:    ex.Category,
		})
	}
	if tx.Currency == "" {
		tx.Currency = req.Prefs.Currency
	}
	if missing := tx.Missing(false); len(missing) > 0 {
		return Reply{Text: p.catalog.Prompt(lang, tx, missing)}, nil
	}

	created, err := p.ledger.CreateTransaction(ctx, ledger.NewCreateRequest(req.Message.Context(), tx))
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: p.catalog.Recorded(lang, tx.Description, created), Created: &created}, nil
}

func (p *Primary) extract(ctx context.Context, msg domain.InboundMessage) (extracted, error) {
	parts := []tally.ContentPart{tally.NewTextPart(msg.Text)}
	if msg.HasImage() {
		parts = append(parts, tally.NewImageURLPart(msg.ImageRef))
	}
	msgs := []tally.Message{
		tally.SystemMessage(extractPrompt),
		{Role: tally.RoleUser, Parts: parts},
	}
	ex, err := client.ChatJSON[extracted](ctx, p.llm, msgs, transactionSchema)
	if err != nil {
		return extracted{}, fmt.Errorf("assistant: extract transaction: %w", err)
	}
	return ex, nil
}

func (p *Primary) chat(ctx context.Context, req Request) (Reply, error) {
	lang := p.catalog.LanguageName(req.Prefs.Language)
	msgs := []tally.Message{
		tally.SystemMessage(fmt.Sprintf(chatPrompt, lang)),
		tally.UserMessage(req.Message.Text),
	}
	resp, err := p.llm.Chat(ctx, msgs, tally.WithMaxTokens(400))
	if err != nil {
		return Reply{}, fmt.Errorf("assistant: chat: %w", err)
	}
	return Reply{Text: strings.TrimSpace(resp.Content)}, nil
}

var _ Assistant = (*Primary)(nil)
