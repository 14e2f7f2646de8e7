package orchestrator

import "strings"

// Confirmation detection is a phrase-list substring match against lower-cased
// transcript text. The tables are tunable data per locale, not an exhaustive
// language model; locales without a table fall back to English.

var confirmPhrases = map[string][]string{
	"en": {
		"yes",
		"yeah",
		"yep",
		"confirm",
		"confirmed",
		"go ahead",
		"save it",
		"please save",
		"sounds good",
		"looks good",
		"that's correct",
		"correct",
		"approve",
	},
	"zh": {
		"确认",
		"保存",
		"好的",
		"没问题",
		"可以",
		"是的",
		"同意",
	},
}

var approvalPrompts = map[string][]string{
	"en": {
		"shall i save",
		"should i save",
		"do you want me to save",
		"want me to save",
		"ready to save",
		"ready to finalize",
		"save this note",
		"save the note",
		"approve the summary",
	},
	"zh": {
		"是否保存",
		"需要保存吗",
		"要保存吗",
		"可以保存吗",
	},
}

// IsConfirmation reports whether the text contains a save-approval phrase.
func IsConfirmation(text, locale string) bool {
	return matchPhrases(text, confirmPhrases, locale)
}

// IsApprovalPrompt reports whether assistant speech is asking the doctor to
// approve a save, which arms the verbal-confirmation flow.
func IsApprovalPrompt(text, locale string) bool {
	return matchPhrases(text, approvalPrompts, locale)
}

func matchPhrases(text string, table map[string][]string, locale string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return false
	}
	phrases, ok := table[primarySubtag(locale)]
	if !ok {
		phrases = table["en"]
	}
	for _, phrase := range phrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// primarySubtag reduces "zh-CN" style locales to their language part.
func primarySubtag(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		return locale[:i]
	}
	return locale
}
