package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spetersoncode/tally/internal/domain"
	"github.com/spetersoncode/tally/internal/i18n"
	"github.com/spetersoncode/tally/internal/ledger"
	"github.com/spetersoncode/tally/internal/parse"
	"github.com/spetersoncode/tally/workflow"
)

// TransactionWorkflowID is the id of the workflow built by
// NewTransactionWorkflow.
const TransactionWorkflowID = "transaction"

// Input is the immutable input of a transaction run.
type Input struct {
	Message domain.InboundMessage
	Prefs   domain.Preferences
	Kind    Kind
}

// RunState accumulates what a transaction run has learned.
type RunState struct {
	MessageType   Kind
	Init          domain.SourceInit
	Members       []domain.Member
	Transaction   domain.ParsedTransaction
	IsValid       bool
	Missing       []string
	TransactionID string
	Created       *domain.CreatedTransaction
	Response      string
}

// Prompt is the payload of a run suspended for clarification.
type Prompt struct {
	Text    string
	Missing []string
}

type (
	// TransactionWorkflow is the committed transaction workflow.
	TransactionWorkflow = workflow.Workflow[Input, RunState]
	// Snapshot is the resume point of a suspended transaction run.
	Snapshot = workflow.Snapshot[Input, RunState]

	runContext = workflow.RunContext[Input, RunState]
)

// Ledger is the part of the ledger API the workflow writes to.
type Ledger interface {
	InitSource(ctx context.Context, req ledger.InitRequest) (domain.SourceInit, error)
	GetMembers(ctx context.Context, lctx domain.LedgerContext) ([]domain.Member, error)
	CreateTransaction(ctx context.Context, req ledger.CreateRequest) (domain.CreatedTransaction, error)
}

// Extractor reads receipts from photos.
type Extractor interface {
	Extract(ctx context.Context, imageRef string) (domain.Receipt, error)
}

// WorkflowDeps are the collaborators of the transaction workflow.
type WorkflowDeps struct {
	Ledger  Ledger
	OCR     Extractor
	Parser  *parse.Parser
	Catalog *i18n.Catalog
}

func (d WorkflowDeps) validate() error {
	var errs []error
	if d.Ledger == nil {
		errs = append(errs, errors.New("ledger is required"))
	}
	if d.OCR == nil {
		errs = append(errs, errors.New("ocr extractor is required"))
	}
	if d.Parser == nil {
		errs = append(errs, errors.New("parser is required"))
	}
	if d.Catalog == nil {
		errs = append(errs, errors.New("catalog is required"))
	}
	return errors.Join(errs...)
}

// NewTransactionWorkflow builds the workflow that turns a message into a
// ledger entry:
//
//	init-source
//	conversation: group  -> members, extract, resolve-splits, validate, create
//	              direct -> extract, validate, create
//	format
//
// The validate steps suspend when the amount, the description or, in
// groups, the split members are missing.
func NewTransactionWorkflow(d WorkflowDeps) (*TransactionWorkflow, error) {
	if err := d.validate(); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	s := steps{d}

	group, err := workflow.New[Input, RunState]("group").
		Then(workflow.NewStep("members", s.members)).
		Then(workflow.NewStep("extract", s.extract)).
		Then(workflow.NewStep("resolve-splits", s.resolveSplits)).
		Then(workflow.NewStep("validate", s.validate(true))).
		Then(workflow.NewStep("create", s.create)).
		Commit()
	if err != nil {
		return nil, err
	}

	direct, err := workflow.New[Input, RunState]("direct").
		Then(workflow.NewStep("extract", s.extract)).
		Then(workflow.NewStep("validate", s.validate(false))).
		Then(workflow.NewStep("create", s.create)).
		Commit()
	if err != nil {
		return nil, err
	}

	return workflow.New[Input, RunState](TransactionWorkflowID).
		Then(workflow.NewStep("init-source", s.initSource)).
		Branch("conversation",
			workflow.When("group", func(in Input) bool { return in.Message.IsGroup }, group),
			workflow.Otherwise("direct", direct),
		).
		Map("format", workflow.Transform(s.format)).
		Commit()
}

type steps struct {
	WorkflowDeps
}

func (s steps) initSource(ctx context.Context, _ any, rc *runContext) workflow.Outcome[domain.SourceInit] {
	rc.State.MessageType = rc.Init.Kind
	msg := rc.Init.Message
	init, err := s.Ledger.InitSource(ctx, ledger.InitRequest{Context: msg.Context(), SenderName: msg.SenderName})
	if err != nil {
		return workflow.Fail[domain.SourceInit](err)
	}
	rc.State.Init = init
	return workflow.Continue(init)
}

func (s steps) members(ctx context.Context, _ any, rc *runContext) workflow.Outcome[[]domain.Member] {
	members, err := s.Ledger.GetMembers(ctx, rc.Init.Message.Context())
	if err != nil {
		return workflow.Fail[[]domain.Member](err)
	}
	rc.State.Members = members
	return workflow.Continue(members)
}

// extract reads the transaction from the photo or the text. A photo's
// caption contributes split instructions and a description.
func (s steps) extract(ctx context.Context, _ any, rc *runContext) workflow.Outcome[domain.ParsedTransaction] {
	msg, prefs := rc.Init.Message, rc.Init.Prefs

	var tx domain.ParsedTransaction
	if msg.HasImage() {
		receipt, err := s.OCR.Extract(ctx, msg.ImageRef)
		if err != nil {
			return workflow.Fail[domain.ParsedTransaction](err)
		}
		tx = receipt.Transaction(prefs.Currency)
		if msg.HasText() {
			caption := s.Parser.ParseFor(msg.Text, prefs).Transaction()
			tx.SplitRequested = caption.SplitRequested
			tx.SplitAll = caption.SplitAll
			tx.SplitTargets = caption.SplitTargets
			if caption.Description != "" {
				tx.Description = caption.Description
			}
		}
		if tx.Category == "" && tx.Description != "" {
			tx.Category = s.Parser.Category(tx.Description)
		}
	} else {
		tx = s.Parser.ParseFor(msg.Text, prefs).Transaction()
	}
	if tx.Currency == "" {
		tx.Currency = prefs.Currency
	}

	rc.State.Transaction = tx
	return workflow.Continue(tx)
}

func (s steps) resolveSplits(_ context.Context, tx domain.ParsedTransaction, rc *runContext) workflow.Outcome[domain.ParsedTransaction] {
	tx = resolveSplits(tx, rc.State.Members, rc.Init.Message.SenderID)
	rc.State.Transaction = tx
	return workflow.Continue(tx)
}

// validate merges resume data into the transaction and suspends with a
// clarifying prompt while fields are missing.
func (s steps) validate(group bool) workflow.StepFunc[Input, RunState, domain.ParsedTransaction, domain.ParsedTransaction] {
	return func(_ context.Context, in domain.ParsedTransaction, rc *runContext) workflow.Outcome[domain.ParsedTransaction] {
		tx := in.Merge(rc.State.Transaction)

		if data, ok := workflow.ResumeDataAs[domain.ParsedTransaction](rc); ok {
			tx = tx.Merge(data)
			if data.Description != "" && data.Category == "" {
				tx.Category = s.Parser.Category(tx.Description)
			}
			if group && (data.SplitAll || len(data.SplitTargets) > 0) {
				tx.Splits = nil
				tx = resolveSplits(tx, rc.State.Members, rc.Init.Message.SenderID)
			}
		}

		missing := tx.Missing(group)
		rc.State.Transaction = tx
		rc.State.Missing = missing
		rc.State.IsValid = len(missing) == 0

		if len(missing) > 0 {
			rc.Logger.Debug("transaction incomplete", "missing", missing)
			text := s.Catalog.Prompt(rc.Init.Prefs.Language, tx, missing)
			return workflow.Suspend[domain.ParsedTransaction](Prompt{Text: text, Missing: missing})
		}
		return workflow.Continue(tx)
	}
}

func (s steps) create(ctx context.Context, tx domain.ParsedTransaction, rc *runContext) workflow.Outcome[domain.CreatedTransaction] {
	tx.Splits = shareEqually(tx.Amount, tx.Splits)
	rc.State.Transaction = tx

	created, err := s.Ledger.CreateTransaction(ctx, ledger.NewCreateRequest(rc.Init.Message.Context(), tx))
	if err != nil {
		return workflow.Fail[domain.CreatedTransaction](err)
	}
	if created.Currency == "" {
		created.Currency = tx.Currency
	}
	if len(created.Splits) == 0 {
		created.Splits = tx.Splits
	}
	rc.State.TransactionID = created.ID
	rc.State.Created = &created
	return workflow.Continue(created)
}

func (s steps) format(_ context.Context, created domain.CreatedTransaction, rc *runContext) (string, error) {
	lang := rc.Init.Prefs.Language
	lines := make([]string, 0, 2)
	if w := s.Catalog.Welcome(lang, rc.State.Init); w != "" {
		lines = append(lines, w)
	}
	lines = append(lines, s.Catalog.Recorded(lang, rc.State.Transaction.Description, created))
	rc.State.Response = strings.Join(lines, "\n\n")
	return rc.State.Response, nil
}

// resolveSplits turns split instructions into members. "@all" selects
// every member. Named targets that match no member are dropped, and the
// sender joins any split they asked for.
func resolveSplits(tx domain.ParsedTransaction, members []domain.Member, senderID string) domain.ParsedTransaction {
	if !tx.SplitRequested || len(tx.Splits) > 0 {
		return tx
	}

	var picked []domain.Member
	seen := make(map[string]bool)
	add := func(m domain.Member) {
		if !seen[m.ID] {
			seen[m.ID] = true
			picked = append(picked, m)
		}
	}

	if tx.SplitAll {
		for _, m := range members {
			add(m)
		}
	} else {
		for _, target := range tx.SplitTargets {
			for _, m := range members {
				if m.Matches(target) {
					add(m)
					break
				}
			}
		}
		if len(picked) > 0 {
			for _, m := range members {
				if m.ID == senderID {
					add(m)
				}
			}
		}
	}

	tx.Splits = make([]domain.Split, 0, len(picked))
	for _, m := range picked {
		tx.Splits = append(tx.Splits, domain.Split{MemberID: m.ID, Name: m.Name})
	}
	if len(tx.Splits) == 0 {
		tx.Splits = nil
	}
	return tx
}

// shareEqually divides amount across splits in cents. The first shares
// absorb the remainder so the parts sum to amount.
func shareEqually(amount float64, splits []domain.Split) []domain.Split {
	n := len(splits)
	if n == 0 {
		return splits
	}
	cents := int64(math.Round(amount * 100))
	base, rem := cents/int64(n), cents%int64(n)

	out := make([]domain.Split, n)
	for i, sp := range splits {
		share := base
		if int64(i) < rem {
			share++
		}
		sp.Amount = float64(share) / 100
		out[i] = sp
	}
	return out
}
