// Package gateway is the entry point for inbound chat messages. It
// serializes each conversation, drives the transaction workflow through
// suspend and resume, and falls back to the assistants for everything the
// workflow does not handle.
package gateway

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spetersoncode/tally/internal/domain"
)

// Kind is the closed set of message variants the router dispatches on.
type Kind uint8

const (
	KindNone Kind = iota
	KindText
	KindImage
	KindResume
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindResume:
		return "resume"
	default:
		return "none"
	}
}

// Classify decides how msg is handled. Text that arrives while a
// continuation is pending resumes it. A photo always starts a new run, even
// with a continuation pending.
func Classify(msg domain.InboundMessage, pending bool) Kind {
	switch {
	case msg.HasImage():
		return KindImage
	case !msg.HasText():
		return KindNone
	case pending:
		return KindResume
	default:
		return KindText
	}
}

// Policy controls when the bot answers in group conversations.
type Policy string

const (
	// PolicyMention answers group messages that mention the bot.
	PolicyMention Policy = "mention"
	// PolicyAlways answers every group message.
	PolicyAlways Policy = "always"
)

// ParsePolicy validates a policy name. Empty means PolicyMention.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyMention, nil
	case PolicyMention, PolicyAlways:
		return p, nil
	default:
		return "", fmt.Errorf("gateway: unknown group policy %q", s)
	}
}

// Activates reports whether the bot should process msg. Direct
// conversations always activate.
func Activates(msg domain.InboundMessage, policy Policy, botName string) bool {
	if !msg.IsGroup || policy == PolicyAlways || msg.Mentioned {
		return true
	}
	return botName != "" && mentionPattern(botName).MatchString(msg.Text)
}

// StripMention removes @botName from text.
func StripMention(text, botName string) string {
	if botName == "" {
		return strings.TrimSpace(text)
	}
	return strings.Join(strings.Fields(mentionPattern(botName).ReplaceAllString(text, " ")), " ")
}

func mentionPattern(botName string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(^|\s)@` + regexp.QuoteMeta(strings.TrimPrefix(botName, "@")) + `(?:$|[^\p{L}\p{N}_])`)
}

// SessionKeyOf returns the key that serializes processing for msg.
func SessionKeyOf(msg domain.InboundMessage) domain.SessionKey {
	return domain.KeyOf(msg)
}
