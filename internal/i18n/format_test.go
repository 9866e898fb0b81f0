package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spetersoncode/tally/internal/domain"
)

func TestRecorded(t *testing.T) {
	c := MustLoad()

	msg := c.Recorded("en", "coffee", domain.CreatedTransaction{ID: "tx-1", Amount: 65, Currency: "THB"})
	assert.Equal(t, "Recorded coffee: ฿65 (#tx-1)", msg)

	msg = c.Recorded("en", "lunch", domain.CreatedTransaction{ID: "tx-2", Amount: 600, Currency: "THB", Splits: []domain.Split{{}, {}, {}}})
	assert.Contains(t, msg, "Split between 3 people, ฿200 each.")
}

func TestPrompt(t *testing.T) {
	c := MustLoad()

	tests := []struct {
		name    string
		tx      domain.ParsedTransaction
		missing []string
		want    string
	}{
		{"both", domain.ParsedTransaction{}, []string{domain.FieldAmount, domain.FieldDescription}, c.T("en", PromptWhatAndHowMuch)},
		{"amount", domain.ParsedTransaction{Description: "coffee"}, []string{domain.FieldAmount}, "How much was coffee?"},
		{"description", domain.ParsedTransaction{Amount: 65, Currency: "THB"}, []string{domain.FieldDescription}, "What did you spend ฿65 on?"},
		{"split", domain.ParsedTransaction{Amount: 600, Currency: "THB"}, []string{domain.FieldSplit}, "Who should I split ฿600 with? Mention people with @name, or say @all."},
		{"none", domain.ParsedTransaction{}, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Prompt("en", tt.tx, tt.missing))
		})
	}
}

func TestWelcomeAndLists(t *testing.T) {
	c := MustLoad()

	assert.Equal(t, c.T("en", ReplyWelcomeSource), c.Welcome("en", domain.SourceInit{IsNewSource: true, IsNewUser: true}))
	assert.Equal(t, c.T("en", ReplyWelcomeUser), c.Welcome("en", domain.SourceInit{IsNewUser: true}))
	assert.Empty(t, c.Welcome("en", domain.SourceInit{}))

	assert.Equal(t, "No balances yet.", c.Balances("en", nil))
	assert.Equal(t, "Balances:\nAlice: ฿120", c.Balances("en", []domain.Balance{{Name: "Alice", Net: 120, Currency: "THB"}}))
	assert.Equal(t, "To settle up:\nBob pays Alice ฿50", c.Settlements("en", []domain.Settlement{{From: "Bob", To: "Alice", Amount: 50, Currency: "THB"}}))
}
