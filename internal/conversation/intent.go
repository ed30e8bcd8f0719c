package conversation

import (
	"regexp"
	"strings"

	"codeloom/internal/codeblock"
)

// Edit actions recognised by AnalyzeIntent.
const (
	ActionFix      = "fix"
	ActionRefactor = "refactor"
	ActionExplain  = "explain"
	ActionOptimize = "optimize"
	ActionTest     = "test"
	ActionDocument = "document"
	ActionStyle    = "style"
	ActionModify   = "modify"
)

// DefaultTarget is the target reported when a prompt names nothing specific.
const DefaultTarget = "entire code"

// Intent is the lexical reading of an edit request.
type Intent struct {
	Action string
	Target string
}

// actionEntry maps natural language onto one action.
type actionEntry struct {
	Action   string
	Synonyms []string         // whole-word matches
	Patterns []*regexp.Regexp // phrase matches, weighted above synonyms
	Priority int

	words *regexp.Regexp
}

// actionCorpus is ordered; ties on score go to the earlier entry.
var actionCorpus = []*actionEntry{
	{
		Action:   ActionFix,
		Synonyms: []string{"fix", "bug", "bugs", "broken", "error", "errors", "repair", "debug", "crash", "crashes"},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(doesn't|does not|isn't|is not|won't) work`),
			regexp.MustCompile(`not working`),
		},
		Priority: 90,
	},
	{
		Action:   ActionRefactor,
		Synonyms: []string{"refactor", "restructure", "reorganize", "simplify", "rewrite", "cleanup"},
		Patterns: []*regexp.Regexp{regexp.MustCompile(`clean (it |this |the code )?up`)},
		Priority: 80,
	},
	{
		Action:   ActionOptimize,
		Synonyms: []string{"optimize", "optimise", "faster", "performance", "efficient", "speed"},
		Patterns: []*regexp.Regexp{regexp.MustCompile(`speed (it |this )?up`)},
		Priority: 75,
	},
	{
		Action:   ActionExplain,
		Synonyms: []string{"explain", "describe", "understand", "why"},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`^(what|how) (does|do|is)\b`),
			regexp.MustCompile(`walk me through`),
		},
		Priority: 70,
	},
	{
		Action:   ActionTest,
		Synonyms: []string{"test", "tests", "testing", "coverage"},
		Patterns: []*regexp.Regexp{regexp.MustCompile(`unit tests?`)},
		Priority: 60,
	},
	{
		Action:   ActionDocument,
		Synonyms: []string{"document", "documentation", "docs", "comment", "comments", "docstring", "docstrings", "jsdoc", "readme"},
		Priority: 55,
	},
	{
		Action:   ActionStyle,
		Synonyms: []string{"style", "styles", "styling", "color", "colour", "colors", "font", "theme", "layout", "prettier", "responsive"},
		Patterns: []*regexp.Regexp{regexp.MustCompile(`look (better|nicer|modern)`)},
		Priority: 50,
	},
}

func init() {
	for _, e := range actionCorpus {
		quoted := make([]string, len(e.Synonyms))
		for i, s := range e.Synonyms {
			quoted[i] = regexp.QuoteMeta(s)
		}
		e.words = regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
}

// knownLanguages are the names a prompt or edit target can use to single
// out one language, keyed by normalized name.
var knownLanguages = map[string]struct{}{
	"html": {}, "css": {}, "javascript": {}, "typescript": {}, "python": {},
	"go": {}, "rust": {}, "java": {}, "ruby": {}, "sql": {}, "bash": {},
}

var (
	languageMention = regexp.MustCompile(`\b(html|css|scss|javascript|js|jsx|typescript|ts|tsx|python|py|golang|rust|java|ruby|sql|bash)\b`)
	quotedPhrase    = regexp.MustCompile("[\"`]([^\"`]{2,60})[\"`]")
	thePhrase       = regexp.MustCompile(`\bthe\s+([a-z][\w-]*)(?:\s+([a-z][\w-]*))?`)
)

var phraseStop = map[string]bool{
	"a": true, "an": true, "and": true, "as": true, "at": true, "by": true,
	"for": true, "from": true, "in": true, "into": true, "is": true, "it": true,
	"of": true, "on": true, "or": true, "so": true, "that": true, "to": true,
	"with": true, "when": true,
}

// targetNouns may follow a "the X" word to form a two-word target.
var targetNouns = map[string]bool{
	"button": true, "form": true, "component": true, "function": true,
	"page": true, "header": true, "footer": true, "section": true,
	"class": true, "method": true, "layout": true, "menu": true,
	"modal": true, "bar": true, "list": true, "card": true, "table": true,
	"handler": true, "loop": true, "query": true, "endpoint": true,
	"file": true, "module": true, "styles": true, "script": true,
}

// AnalyzeIntent classifies a free-text edit request. It never fails:
// unmatched text yields ActionModify over DefaultTarget.
func AnalyzeIntent(prompt string) Intent {
	lower := strings.ToLower(strings.TrimSpace(prompt))
	return Intent{Action: matchAction(lower), Target: extractTarget(prompt, lower)}
}

func matchAction(lower string) string {
	best, bestScore := ActionModify, 0.0
	for _, e := range actionCorpus {
		score := 0.0
		for _, p := range e.Patterns {
			if p.MatchString(lower) {
				score = 50.0 + float64(e.Priority)/10.0
				break
			}
		}
		if score == 0 && e.words.MatchString(lower) {
			score = 30.0 + float64(e.Priority)/10.0
		}
		if score > bestScore {
			best, bestScore = e.Action, score
		}
	}
	return best
}

// mentionedLanguages returns the distinct normalized languages a prompt names.
func mentionedLanguages(prompt string) map[string]bool {
	out := make(map[string]bool)
	for _, m := range languageMention.FindAllStringSubmatch(strings.ToLower(prompt), -1) {
		out[codeblock.NormalizeLanguage(m[1])] = true
	}
	return out
}

// extractTarget prefers a named language, then a quoted phrase, then a
// "the X" phrase.
func extractTarget(prompt, lower string) string {
	if m := languageMention.FindStringSubmatch(lower); m != nil {
		return codeblock.NormalizeLanguage(m[1])
	}
	if m := quotedPhrase.FindStringSubmatch(prompt); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := thePhrase.FindStringSubmatch(lower); m != nil && !phraseStop[m[1]] {
		if targetNouns[m[2]] {
			return m[1] + " " + m[2]
		}
		return m[1]
	}
	return DefaultTarget
}
