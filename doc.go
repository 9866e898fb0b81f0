// Package tally holds the provider-neutral types shared by the tally service:
// chat messages, request options, the ChatProvider contract and the
// categorized error model used for retry decisions.
//
// The conversational pipeline itself lives in internal/gateway and the
// workflow package. This package stays small so that providers, the OCR
// extractor and the assistants can depend on it without import cycles.
//
// # Errors
//
// Errors returned by providers and the ledger client implement
// [CategorizedError]. Use [IsTransient] to decide whether an operation may be
// retried:
//
//	resp, err := provider.Chat(ctx, msgs)
//	if tally.IsTransient(err) {
//	    // back off and try again
//	}
package tally
