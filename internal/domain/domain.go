// Package domain holds the types shared by the parser, the OCR extractor,
// the ledger client and the gateway.
package domain

import (
	"strings"
	"time"
)

// Missing field names reported by ParsedTransaction.Missing.
const (
	FieldAmount      = "amount"
	FieldDescription = "description"
	FieldSplit       = "splitInfo"
)

// InboundMessage is a chat message normalized by a channel adapter.
type InboundMessage struct {
	Channel         string    `json:"channel"`
	SourceID        string    `json:"sourceId"`
	SenderID        string    `json:"senderId"`
	SenderName      string    `json:"senderName,omitempty"`
	MessageID       string    `json:"messageId,omitempty"`
	Text            string    `json:"text,omitempty"`
	ImageRef        string    `json:"imageRef,omitempty"`
	IsGroup         bool      `json:"isGroup"`
	Mentioned       bool      `json:"mentioned,omitempty"`
	QuotedMessageID string    `json:"quotedMessageId,omitempty"`
	ReceivedAt      time.Time `json:"receivedAt,omitzero"`
}

// HasImage reports whether the message carries a photo.
func (m InboundMessage) HasImage() bool { return m.ImageRef != "" }

// HasText reports whether the message carries non-blank text.
func (m InboundMessage) HasText() bool { return strings.TrimSpace(m.Text) != "" }

// SessionKey identifies one conversation: a channel plus its source.
type SessionKey string

// KeyOf returns the session key of m.
func KeyOf(m InboundMessage) SessionKey {
	return SessionKey(m.Channel + ":" + m.SourceID)
}

// Context returns the ledger addressing for m.
func (m InboundMessage) Context() LedgerContext {
	return LedgerContext{Channel: m.Channel, SourceID: m.SourceID, SenderID: m.SenderID, IsGroup: m.IsGroup}
}

// LedgerContext addresses ledger calls to one conversation and sender.
type LedgerContext struct {
	Channel  string `json:"channel"`
	SourceID string `json:"sourceId"`
	SenderID string `json:"senderId"`
	IsGroup  bool   `json:"isGroup"`
}

// Preferences are per-user settings.
type Preferences struct {
	Language string `json:"language"`
	Currency string `json:"currency"`
	Timezone string `json:"timezone"`
}

// WithDefaults fills empty fields from d.
func (p Preferences) WithDefaults(d Preferences) Preferences {
	if p.Language == "" {
		p.Language = d.Language
	}
	if p.Currency == "" {
		p.Currency = d.Currency
	}
	if p.Timezone == "" {
		p.Timezone = d.Timezone
	}
	return p
}

// Location resolves the timezone, falling back to UTC.
func (p Preferences) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LineItem is one row of a receipt.
type LineItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice,omitempty"`
	Total     float64 `json:"total"`
}

// Payment describes how a purchase was paid.
type Payment struct {
	Method    string `json:"method,omitempty"`
	CardLast4 string `json:"cardLast4,omitempty"`
}

// Split is one member's share of a transaction.
type Split struct {
	MemberID string  `json:"memberId"`
	Name     string  `json:"name,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
}

// Member is a participant of a group source.
type Member struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
}

// Matches reports whether handle names m, ignoring case and a leading @.
func (m Member) Matches(handle string) bool {
	h := strings.ToLower(strings.TrimPrefix(handle, "@"))
	if h == "" {
		return false
	}
	return h == strings.ToLower(m.Username) || h == strings.ToLower(m.Name) || h == strings.ToLower(m.ID)
}

// ParsedTransaction accumulates what is known about a purchase. A zero
// Amount and an empty Description mean unknown.
type ParsedTransaction struct {
	Description string     `json:"description,omitempty"`
	Amount      float64    `json:"amount,omitempty"`
	Currency    string     `json:"currency,omitempty"`
	Category    string     `json:"category,omitempty"`
	Date        time.Time  `json:"date,omitzero"`
	StoreName   string     `json:"storeName,omitempty"`
	Items       []LineItem `json:"items,omitempty"`
	Payment     *Payment   `json:"payment,omitempty"`

	// SplitRequested is set when the message asks for a split.
	SplitRequested bool     `json:"splitRequested,omitempty"`
	SplitAll       bool     `json:"splitAll,omitempty"`
	SplitTargets   []string `json:"splitTargets,omitempty"`
	Splits         []Split  `json:"splits,omitempty"`
}

// Creatable reports whether the transaction has an amount and a description.
func (t ParsedTransaction) Creatable() bool {
	return t.Amount > 0 && strings.TrimSpace(t.Description) != ""
}

// Missing lists the fields that block creation. In a group, a requested
// split without resolved members also blocks.
func (t ParsedTransaction) Missing(group bool) []string {
	var missing []string
	if t.Amount <= 0 {
		missing = append(missing, FieldAmount)
	}
	if strings.TrimSpace(t.Description) == "" {
		missing = append(missing, FieldDescription)
	}
	if group && t.SplitRequested && len(t.Splits) == 0 {
		missing = append(missing, FieldSplit)
	}
	return missing
}

// Merge overlays the non-empty fields of o onto t.
func (t ParsedTransaction) Merge(o ParsedTransaction) ParsedTransaction {
	if o.Description != "" {
		t.Description = o.Description
	}
	if o.Amount > 0 {
		t.Amount = o.Amount
	}
	if o.Currency != "" {
		t.Currency = o.Currency
	}
	if o.Category != "" {
		t.Category = o.Category
	}
	if !o.Date.IsZero() {
		t.Date = o.Date
	}
	if o.StoreName != "" {
		t.StoreName = o.StoreName
	}
	if len(o.Items) > 0 {
		t.Items = o.Items
	}
	if o.Payment != nil {
		t.Payment = o.Payment
	}
	if o.SplitRequested {
		t.SplitRequested = true
	}
	if o.SplitAll {
		t.SplitAll = true
	}
	if len(o.SplitTargets) > 0 {
		t.SplitTargets = o.SplitTargets
	}
	if len(o.Splits) > 0 {
		t.Splits = o.Splits
	}
	return t
}

// ParseResult is the output of the text parser. Fields it could not find
// are left empty.
type ParseResult struct {
	Description    string    `json:"description,omitempty"`
	Amount         float64   `json:"amount,omitempty"`
	Currency       string    `json:"currency"`
	Category       string    `json:"category"`
	Date           time.Time `json:"date,omitzero"`
	SplitRequested bool      `json:"splitRequested,omitempty"`
	SplitAll       bool      `json:"splitAll,omitempty"`
	SplitTargets   []string  `json:"splitTargets,omitempty"`
}

// Transaction converts r into a ParsedTransaction.
func (r ParseResult) Transaction() ParsedTransaction {
	return ParsedTransaction{
		Description:    r.Description,
		Amount:         r.Amount,
		Currency:       r.Currency,
		Category:       r.Category,
		Date:           r.Date,
		SplitRequested: r.SplitRequested || r.SplitAll || len(r.SplitTargets) > 0,
		SplitAll:       r.SplitAll,
		SplitTargets:   r.SplitTargets,
	}
}

// Receipt is the output of the OCR extractor.
type Receipt struct {
	IsReceipt bool       `json:"isReceipt"`
	StoreName string     `json:"storeName,omitempty"`
	Items     []LineItem `json:"items,omitempty"`
	Total     float64    `json:"total,omitempty"`
	Currency  string     `json:"currency,omitempty"`
	Category  string     `json:"category,omitempty"`
	Date      string     `json:"date,omitempty"`
	Payment   *Payment   `json:"payment,omitempty"`
}

// Transaction converts a receipt into a ParsedTransaction. A receipt
// without a total sums its items. Item quantities default to 1.
func (r Receipt) Transaction(defaultCurrency string) ParsedTransaction {
	items := make([]LineItem, 0, len(r.Items))
	var sum float64
	for _, it := range r.Items {
		if it.Quantity <= 0 {
			it.Quantity = 1
		}
		if it.Total == 0 && it.UnitPrice > 0 {
			it.Total = it.UnitPrice * float64(it.Quantity)
		}
		sum += it.Total
		items = append(items, it)
	}

	total := r.Total
	if total <= 0 {
		total = sum
	}
	currency := r.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	tx := ParsedTransaction{
		Description: r.StoreName,
		Amount:      total,
		Currency:    currency,
		Category:    r.Category,
		StoreName:   r.StoreName,
		Items:       items,
		Payment:     r.Payment,
	}
	if d, err := time.Parse(time.DateOnly, r.Date); err == nil {
		tx.Date = d
	}
	return tx
}

// SourceInit reports whether a conversation or sender was seen for the
// first time.
type SourceInit struct {
	IsNewSource bool `json:"isNewSource"`
	IsNewUser   bool `json:"isNewUser"`
}

// CreatedTransaction is the ledger's confirmation of a new entry.
type CreatedTransaction struct {
	ID       string  `json:"id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Splits   []Split `json:"splits,omitempty"`
}

// TransactionRecord is a stored ledger entry.
type TransactionRecord struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Category    string    `json:"category,omitempty"`
	PaidBy      string    `json:"paidBy,omitempty"`
	Date        time.Time `json:"date"`
}

// Balance is a member's net position in a source.
type Balance struct {
	MemberID string  `json:"memberId"`
	Name     string  `json:"name"`
	Net      float64 `json:"net"`
	Currency string  `json:"currency"`
}

// Settlement is a suggested payment that clears debts.
type Settlement struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}
