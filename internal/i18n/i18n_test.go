package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestLoad(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	assert.ElementsMatch(t, []language.Tag{language.English, language.Thai}, c.Languages())
}

func TestT(t *testing.T) {
	c := MustLoad()

	assert.Equal(t, "How much was coffee?", c.T("en", PromptHowMuch, "coffee"))
	assert.Equal(t, "กาแฟ ราคาเท่าไหร่คะ", c.T("th", PromptHowMuch, "กาแฟ"))
	assert.Equal(t, "How much was tea?", c.T("fr", PromptHowMuch, "tea"), "unsupported languages fall back to English")
	assert.Equal(t, "How much was tea?", c.T("en-GB", PromptHowMuch, "tea"))
	assert.Equal(t, "no.such.key", c.T("en", "no.such.key"))
}

func TestEveryKeyTranslated(t *testing.T) {
	c := MustLoad()
	en := c.locales[language.English].Messages
	th := c.locales[language.Thai].Messages
	for key := range en {
		assert.Contains(t, th, key)
	}
}

func TestAmount(t *testing.T) {
	c := MustLoad()

	assert.Equal(t, "฿65", c.Amount("en", 65, "THB"))
	assert.Equal(t, "$12.5", c.Amount("en", 12.5, "usd"))
	assert.Equal(t, "฿1,200", c.Amount("en", 1200, "THB"))
	assert.Equal(t, "10 CHF", c.Amount("en", 10, "CHF"))
}

func TestIsCancel(t *testing.T) {
	c := MustLoad()

	assert.True(t, c.IsCancel("Cancel"))
	assert.True(t, c.IsCancel(" ยกเลิก "))
	assert.False(t, c.IsCancel("coffee 65"))
}

func TestLanguageName(t *testing.T) {
	c := MustLoad()
	assert.Equal(t, "Thai", c.LanguageName("th"))
	assert.Equal(t, "English", c.LanguageName("xx"))
}
