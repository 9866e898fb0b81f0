package assistant

import (
	_ "embed"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/spetersoncode/tally/internal/domain"
)

// Intent is what a message asks for.
type Intent string

const (
	IntentTransaction Intent = "transaction"
	IntentAdvisory    Intent = "advisory"
	IntentBalance     Intent = "balance"
	IntentSettlement  Intent = "settlement"
	IntentHelp        Intent = "help"
	IntentOther       Intent = "other"
)

// WantsBoth reports whether both assistants may have something to say.
func (i Intent) WantsBoth() bool {
	return i == IntentTransaction || i == IntentAdvisory
}

//go:embed intents.yaml
var intentsYAML []byte

type intentTable struct {
	Advisory    []string `yaml:"advisory"`
	Balance     []string `yaml:"balance"`
	Settlement  []string `yaml:"settlement"`
	Help        []string `yaml:"help"`
	Transaction []string `yaml:"transaction"`
}

type family struct {
	intent   Intent
	patterns []*regexp.Regexp
}

// families are checked in order; the first match wins.
var families = mustLoadFamilies()

func mustLoadFamilies() []family {
	var t intentTable
	if err := yaml.Unmarshal(intentsYAML, &t); err != nil {
		panic(fmt.Sprintf("assistant: load intents: %v", err))
	}
	compile := func(i Intent, src []string) family {
		f := family{intent: i}
		for _, s := range src {
			f.patterns = append(f.patterns, regexp.MustCompile(s))
		}
		return f
	}
	return []family{
		compile(IntentAdvisory, t.Advisory),
		compile(IntentBalance, t.Balance),
		compile(IntentSettlement, t.Settlement),
		compile(IntentHelp, t.Help),
		compile(IntentTransaction, t.Transaction),
	}
}

// Classify picks an intent with pattern rules only. A photo is always a
// transaction.
func Classify(msg domain.InboundMessage) Intent {
	if msg.HasImage() {
		return IntentTransaction
	}
	for _, f := range families {
		for _, re := range f.patterns {
			if re.MatchString(msg.Text) {
				return f.intent
			}
		}
	}
	return IntentOther
}
