// Package assistant answers messages outside the transaction workflow.
//
// Two assistants exist. The primary records transactions and answers
// balance, settlement and help questions. The advisor adds an optional
// note about spending habits. The [Coordinator] runs them side by side for
// one message and keeps their failures isolated.
package assistant

import (
	"context"
	"strings"

	"github.com/spetersoncode/tally/internal/domain"
)

// Silent is the advisor's reply when it has nothing worth saying.
const Silent = "[SILENT]"

// Request is one message handed to an assistant.
type Request struct {
	Message domain.InboundMessage
	Prefs   domain.Preferences
	Intent  Intent
	// Created is set for the advisory pass that follows a recorded
	// transaction.
	Created *domain.CreatedTransaction
	// Transaction is the recorded transaction's details, when known.
	Transaction *domain.ParsedTransaction
}

// Reply is an assistant's answer. An empty Text sends nothing.
type Reply struct {
	Text    string
	Created *domain.CreatedTransaction
}

// Assistant answers one request.
type Assistant interface {
	Name() string
	Respond(ctx context.Context, req Request) (Reply, error)
}

// IsSilent reports whether text should not be forwarded.
func IsSilent(text string) bool {
	t := strings.TrimSpace(text)
	return t == "" || strings.EqualFold(t, Silent)
}
