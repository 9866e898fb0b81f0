// Package parse extracts transaction fields from free chat text.
//
// The parser is rule based: it never calls the network and never fails.
// Fields it cannot find are left empty.
package parse

import (
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/spetersoncode/tally/internal/domain"
)

// DefaultCategory is assigned when no keyword matches.
const DefaultCategory = "other"

//go:embed categories.yaml
var categoriesYAML []byte

type category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

var (
	amountPattern = regexp.MustCompile(`(?i)^([฿$€£¥])?(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d{1,2}))?(k)?(บาท|baht|thb|usd|eur|gbp|jpy)?$`)

	symbolCurrency = map[string]string{"฿": "THB", "$": "USD", "€": "EUR", "£": "GBP", "¥": "JPY"}
	wordCurrency   = map[string]string{
		"บาท": "THB", "baht": "THB", "thb": "THB",
		"usd": "USD", "dollar": "USD", "dollars": "USD",
		"eur": "EUR", "euro": "EUR", "euros": "EUR",
		"gbp": "GBP", "jpy": "JPY", "yen": "JPY",
	}

	splitWords = map[string]bool{"split": true, "share": true, "หาร": true, "แชร์": true, "แบ่ง": true}
	allHandles = map[string]bool{"all": true, "everyone": true, "ทุกคน": true}
	fillers    = map[string]bool{"paid": true, "bought": true, "spent": true, "for": true, "on": true, "จ่าย": true, "ซื้อ": true, "ค่า": true}

	today     = map[string]bool{"today": true, "วันนี้": true}
	yesterday = map[string]bool{"yesterday": true, "เมื่อวาน": true, "เมื่อวานนี้": true}
)

// Parser extracts ParseResults from text.
type Parser struct {
	categories []category
	now        func() time.Time
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock overrides the time source used for relative dates.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) { p.now = now }
}

// New creates a Parser with the embedded category table.
func New(opts ...Option) (*Parser, error) {
	var cats []category
	if err := yaml.Unmarshal(categoriesYAML, &cats); err != nil {
		return nil, fmt.Errorf("parse: load categories: %w", err)
	}
	p := &Parser{categories: cats, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// MustNew is like New but panics if the embedded table is invalid.
func MustNew(opts ...Option) *Parser {
	p, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Parse extracts fields from text. Currency is used when the text names none.
func (p *Parser) Parse(text, currency string) domain.ParseResult {
	return p.ParseFor(text, domain.Preferences{Currency: currency})
}

// ParseFor is Parse with relative dates resolved in the user's timezone.
func (p *Parser) ParseFor(text string, prefs domain.Preferences) domain.ParseResult {
	res := domain.ParseResult{Currency: prefs.Currency}
	var words []string
	amountFound := false

	for _, tok := range strings.Fields(text) {
		lower := strings.ToLower(trimPunct(tok))

		switch {
		case strings.HasPrefix(tok, "@"):
			handle := strings.TrimPrefix(trimPunct(tok), "@")
			if allHandles[strings.ToLower(handle)] {
				res.SplitAll = true
			} else if handle != "" {
				res.SplitTargets = append(res.SplitTargets, handle)
			}
			res.SplitRequested = true
			continue
		case splitWords[lower]:
			res.SplitRequested = true
			continue
		case today[lower]:
			res.Date = dateIn(p.now(), prefs.Location(), 0)
			continue
		case yesterday[lower]:
			res.Date = dateIn(p.now(), prefs.Location(), -1)
			continue
		}

		if code, ok := wordCurrency[lower]; ok {
			res.Currency = code
			continue
		}
		if !amountFound {
			if amount, code, ok := parseAmount(lower); ok {
				res.Amount = amount
				if code != "" {
					res.Currency = code
				}
				amountFound = true
				continue
			}
		}
		words = append(words, trimPunct(tok))
	}

	for len(words) > 0 && fillers[strings.ToLower(words[0])] {
		words = words[1:]
	}
	res.Description = strings.TrimSpace(strings.Join(words, " "))
	res.Category = p.categorize(res.Description)
	return res
}

// ExtractResume reads a clarifying reply. An amount-like token fills the
// amount, remaining words fill the description, and @mentions fill the
// split targets.
func (p *Parser) ExtractResume(text string) domain.ParsedTransaction {
	r := p.Parse(text, "")
	tx := domain.ParsedTransaction{
		Amount:       r.Amount,
		Currency:     r.Currency,
		Description:  r.Description,
		SplitAll:     r.SplitAll,
		SplitTargets: r.SplitTargets,
	}
	if r.Description != "" && r.Category != DefaultCategory {
		tx.Category = r.Category
	}
	tx.SplitRequested = r.SplitAll || len(r.SplitTargets) > 0
	return tx
}

// Category returns the category for a description.
func (p *Parser) Category(description string) string {
	return p.categorize(description)
}

func (p *Parser) categorize(description string) string {
	if description == "" {
		return DefaultCategory
	}
	lower := strings.ToLower(description)
	fields := strings.Fields(lower)
	for _, c := range p.categories {
		for _, kw := range c.Keywords {
			for _, f := range fields {
				if f == kw {
					return c.Name
				}
			}
			// Thai is often written without spaces.
			if !isASCII(kw) && strings.Contains(lower, kw) {
				return c.Name
			}
		}
	}
	return DefaultCategory
}

func parseAmount(tok string) (float64, string, bool) {
	m := amountPattern.FindStringSubmatch(tok)
	if m == nil {
		return 0, "", false
	}
	num := strings.ReplaceAll(m[2], ",", "")
	if m[3] != "" {
		num += "." + m[3]
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v <= 0 {
		return 0, "", false
	}
	if m[4] != "" {
		v *= 1000
	}

	code := symbolCurrency[m[1]]
	if m[5] != "" {
		code = wordCurrency[strings.ToLower(m[5])]
	}
	return v, code, true
}

func dateIn(now time.Time, loc *time.Location, days int) time.Time {
	y, mo, d := now.In(loc).AddDate(0, 0, days).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, loc)
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r != '@' && unicode.IsPunct(r)
	})
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
