// Package locale maps a closed set of template keys to per-language
// strings. The catalog is embedded; unknown languages fall back to English.
package locale

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

type Key string

const (
	Welcome             Key = "welcome"
	VerificationNeeded  Key = "verification_needed"
	TimeLeft            Key = "time_left"
	CorrectAnswer       Key = "correct_answer"
	WrongAnswer         Key = "wrong_answer"
	VerificationTimeout Key = "verification_timeout"
	VerificationFailed  Key = "verification_failed"
	NothingToAnswer     Key = "nothing_to_answer"
	ChooseLanguage      Key = "choose_language"
	LanguageSet         Key = "language_set"
	InviteLinkGenerated Key = "invite_link_generated"
	InviteStats         Key = "invite_stats"
	InviteMembersTitle  Key = "invite_members_title"
	MemberStatusActive  Key = "member_status_active"
	MemberStatusLeft    Key = "member_status_left"
	NoMembers           Key = "no_members"
	RankingTitle        Key = "ranking_title"
	RankingTotal        Key = "ranking_total"
	RankingLeft         Key = "ranking_left"
	RankingActive       Key = "ranking_active"
	RankingRecent       Key = "ranking_recent"
	NoRankingData       Key = "no_ranking_data"
	YourRank            Key = "your_rank"
	HelpText            Key = "help_text"
	AdminOnly           Key = "admin_only"
	InvitesDeactivated  Key = "invites_deactivated"
	RecountDone         Key = "recount_done"
)

const DefaultLanguage = "en"

//go:embed languages.json
var catalogJSON []byte

type language struct {
	Name         string         `json:"name"`
	Translations map[Key]string `json:"translations"`
}

type Catalog struct {
	languages map[string]language
}

func Load() (*Catalog, error) {
	var raw struct {
		Languages map[string]language `json:"languages"`
	}
	if err := json.Unmarshal(catalogJSON, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode language catalog: %w", err)
	}
	if _, ok := raw.Languages[DefaultLanguage]; !ok {
		return nil, fmt.Errorf("language catalog is missing %q", DefaultLanguage)
	}
	return &Catalog{languages: raw.Languages}, nil
}

// T resolves key for lang, interpolating {name} style params. Missing
// languages and missing keys fall back to English.
func (c *Catalog) T(lang string, key Key, params map[string]string) string {
	l, ok := c.languages[lang]
	if !ok {
		l = c.languages[DefaultLanguage]
	}

	text, ok := l.Translations[key]
	if !ok {
		text, ok = c.languages[DefaultLanguage].Translations[key]
		if !ok {
			return string(key)
		}
	}

	for name, value := range params {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}

	return text
}

// Languages lists catalog languages as code -> display name.
func (c *Catalog) Languages() map[string]string {
	out := make(map[string]string, len(c.languages))
	for code, l := range c.languages {
		out[code] = l.Name
	}
	return out
}

func (c *Catalog) Supported(lang string) bool {
	_, ok := c.languages[lang]
	return ok
}
