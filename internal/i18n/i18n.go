// Package i18n renders user-facing text in the user's language.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Message keys.
const (
	PromptWhatAndHowMuch = "prompt.what_and_how_much"
	PromptHowMuch        = "prompt.how_much"
	PromptWhatFor        = "prompt.what_for"
	PromptSplitWithWhom  = "prompt.split_with_whom"

	ReplyRecorded         = "reply.recorded"
	ReplyRecordedSplit    = "reply.recorded_split"
	ReplyWelcomeSource    = "reply.welcome_source"
	ReplyWelcomeUser      = "reply.welcome_user"
	ReplyCancelled        = "reply.cancelled"
	ReplyBusy             = "reply.busy"
	ReplyBalanceHeader    = "reply.balance_header"
	ReplyBalanceLine      = "reply.balance_line"
	ReplyBalanceEmpty     = "reply.balance_empty"
	ReplySettlementHeader = "reply.settlement_header"
	ReplySettlementLine   = "reply.settlement_line"
	ReplySettlementEmpty  = "reply.settlement_empty"
	ReplyHelp             = "reply.help"

	ErrorGeneric = "error.generic"
	ErrorLedger  = "error.ledger"
	ErrorOCRBusy = "error.ocr_busy"
	ErrorTimeout = "error.timeout"
)

//go:embed locales/*.yaml
var locales embed.FS

type locale struct {
	CancelWords []string          `yaml:"cancel_words"`
	Messages    map[string]string `yaml:"messages"`
}

var currencySymbols = map[string]string{"THB": "฿", "USD": "$", "EUR": "€", "GBP": "£", "JPY": "¥"}

// Catalog holds the messages of every embedded language.
type Catalog struct {
	tags     []language.Tag
	locales  map[language.Tag]locale
	matcher  language.Matcher
	fallback language.Tag
	cancel   map[string]bool
}

// Load reads the embedded locale files. The first supported language is
// English, which is also the fallback.
func Load() (*Catalog, error) {
	entries, err := locales.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("i18n: read locales: %w", err)
	}

	c := &Catalog{locales: make(map[language.Tag]locale), fallback: language.English, cancel: make(map[string]bool)}
	c.tags = append(c.tags, language.English)
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		tag, err := language.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("i18n: locale %q: %w", e.Name(), err)
		}
		data, err := locales.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", e.Name(), err)
		}
		var loc locale
		if err := yaml.Unmarshal(data, &loc); err != nil {
			return nil, fmt.Errorf("i18n: parse %s: %w", e.Name(), err)
		}
		c.locales[tag] = loc
		if tag != language.English {
			c.tags = append(c.tags, tag)
		}
		for _, w := range loc.CancelWords {
			c.cancel[normalize(w)] = true
		}
	}
	if _, ok := c.locales[language.English]; !ok {
		return nil, fmt.Errorf("i18n: missing fallback locale %s", language.English)
	}
	c.matcher = language.NewMatcher(c.tags)
	return c, nil
}

// MustLoad is like Load but panics on error.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Match returns the supported language closest to lang.
func (c *Catalog) Match(lang string) language.Tag {
	_, idx, conf := c.matcher.Match(language.Make(lang))
	if conf == language.No {
		return c.fallback
	}
	return c.tags[idx]
}

// LanguageName returns the English name of the language matched for lang,
// for use in model prompts.
func (c *Catalog) LanguageName(lang string) string {
	return display.English.Tags().Name(c.Match(lang))
}

// T renders key in lang. Missing translations fall back to English, then
// to the key itself.
func (c *Catalog) T(lang, key string, args ...any) string {
	tag := c.Match(lang)
	format, ok := c.locales[tag].Messages[key]
	if !ok {
		format, ok = c.locales[c.fallback].Messages[key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return format
	}
	return message.NewPrinter(tag).Sprintf(format, args...)
}

// Amount formats an amount with its currency symbol, grouped for lang.
func (c *Catalog) Amount(lang string, amount float64, currency string) string {
	p := message.NewPrinter(c.Match(lang))
	n := p.Sprint(number.Decimal(amount, number.MaxFractionDigits(2)))
	if sym, ok := currencySymbols[strings.ToUpper(currency)]; ok {
		return sym + n
	}
	if currency == "" {
		return n
	}
	return n + " " + strings.ToUpper(currency)
}

// IsCancel reports whether text is a cancel word in any language.
func (c *Catalog) IsCancel(text string) bool {
	return c.cancel[normalize(text)]
}

// Languages lists the supported languages.
func (c *Catalog) Languages() []language.Tag {
	return append([]language.Tag(nil), c.tags...)
}

func normalize(s string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(s)))
}
