// Package moderation implements the content-policy gate applied to learner
// transcripts and to model-produced corrections.
//
// The gate is a pure function over a fixed word list: no external service is
// consulted, no state is kept, and the same input always yields the same
// verdict. It runs twice per evaluation — once on the raw transcript before
// any paid scoring stage, and once on every LLM correction to defend against a
// model echoing disallowed content back.
package moderation

import "strings"

// RefusalSentence replaces the correction text whenever the gate blocks input
// or model output. Clients display and speak this sentence verbatim.
const RefusalSentence = "I am not sure about that, please retry."

// BlockedMistake is the single mistake label recorded for a blocked attempt.
const BlockedMistake = "inappropriate language"

// blockedWords is the deny list checked by [IsAllowed]. Matching is
// case-insensitive and whole-word: "class" must not trip on "ass".
var blockedWords = map[string]struct{}{
	"fuck":    {},
	"fucking": {},
	"shit":    {},
	"bitch":   {},
	"asshole": {},
	"bastard": {},
	"dick":    {},
	"cunt":    {},
	"piss":    {},
	"crap":    {},
	"damn":    {},
	"slut":    {},
	"whore":   {},
	"nigger":  {},
	"faggot":  {},
	"retard":  {},
}

// IsAllowed reports whether text passes the content policy. Empty text is
// allowed; emptiness is handled by the transcript resolver, not here.
func IsAllowed(text string) bool {
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:'\"()-")
		if _, blocked := blockedWords[tok]; blocked {
			return false
		}
	}
	return true
}
