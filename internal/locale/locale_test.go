package locale

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	for _, lang := range []string{"en", "zh", "es", "ru"} {
		assert.True(t, c.Supported(lang), "language %q", lang)
	}
	assert.False(t, c.Supported("fr"))
}

func TestTranslate(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	got := c.T("en", Welcome, map[string]string{"name": "Ada"})
	assert.Contains(t, got, "Ada")
	assert.NotContains(t, got, "{name}")
}

func TestTranslate_FallsBackToEnglish(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, c.T("en", HelpText, nil), c.T("fr", HelpText, nil))
}

func TestTranslate_UnknownKey(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "no_such_key", c.T("en", Key("no_such_key"), nil))
}

func TestLanguages(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	names := c.Languages()
	assert.Len(t, names, 4)
	assert.Equal(t, "English", names["en"])
}

// every key the code references must exist in every language, otherwise a
// member would silently get English in the middle of a localized flow
func TestCatalogComplete(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	keys := []Key{
		Welcome, VerificationNeeded, TimeLeft, CorrectAnswer, WrongAnswer,
		VerificationTimeout, VerificationFailed, NothingToAnswer,
		ChooseLanguage, LanguageSet, InviteLinkGenerated, InviteStats,
		InviteMembersTitle, MemberStatusActive, MemberStatusLeft, NoMembers,
		RankingTitle, RankingTotal, RankingLeft, RankingActive, RankingRecent,
		NoRankingData,
		YourRank, HelpText, AdminOnly, InvitesDeactivated, RecountDone,
	}

	for code := range c.Languages() {
		for _, key := range keys {
			text, ok := c.languages[code].Translations[key]
			assert.True(t, ok, "language %q is missing key %q", code, key)
			assert.NotEmpty(t, strings.TrimSpace(text), "language %q has empty %q", code, key)
		}
	}
}
