package codeblock

import (
	"regexp"
	"sort"
	"strings"

	"codeloom/internal/logging"
	"codeloom/internal/types"
)

var fencePattern = regexp.MustCompile("(?s)```([A-Za-z0-9_+#.-]*)[^\\n]*\\n(.*?)```")

var languageAliases = map[string]string{
	"js":        "javascript",
	"jsx":       "javascript",
	"mjs":       "javascript",
	"ts":        "typescript",
	"tsx":       "typescript",
	"py":        "python",
	"python3":   "python",
	"golang":    "go",
	"htm":       "html",
	"xhtml":     "html",
	"scss":      "css",
	"sh":        "bash",
	"shell":     "bash",
	"zsh":       "bash",
	"yml":       "yaml",
	"c++":       "cpp",
	"cs":        "csharp",
	"c#":        "csharp",
	"rs":        "rust",
	"rb":        "ruby",
	"md":        "markdown",
	"plaintext": "text",
	"txt":       "text",
}

// NormalizeLanguage lowercases a language tag and resolves common aliases.
func NormalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if alias, ok := languageAliases[lang]; ok {
		return alias
	}
	return lang
}

// ExtractCodeSections pulls fenced code out of a model response, keyed by
// normalized language. Untagged fences are classified with DetectLanguage.
// Several fences of one language are joined with a blank line.
func ExtractCodeSections(response string) map[string]string {
	out := make(map[string]string)
	for _, m := range fencePattern.FindAllStringSubmatch(response, -1) {
		code := strings.TrimRight(m[2], "\n")
		if strings.TrimSpace(code) == "" {
			continue
		}
		lang := NormalizeLanguage(m[1])
		if lang == "" {
			lang = DetectLanguage(code)
		}
		if prev, ok := out[lang]; ok {
			out[lang] = prev + "\n\n" + code
		} else {
			out[lang] = code
		}
	}
	return out
}

// ExtractFromResponse versions the per-language contents against the refs a
// turn inherited. A language with an existing ref gets a new version on that
// block (unless its content is unchanged); a new language gets a new block.
// Refs for languages absent from contents pass through untouched.
//
// With a non-empty target only that language is considered; every other ref
// passes through unchanged even if contents carries code for it.
//
// Output order: existing refs in their original order, then new blocks
// sorted by language.
func (s *Store) ExtractFromResponse(contents map[string]string, turnID string, existing []Ref, target string) ([]Ref, error) {
	pending := make(map[string]string, len(contents))
	for lang, code := range contents {
		if code == "" {
			continue
		}
		norm := NormalizeLanguage(lang)
		if norm == "" {
			return nil, types.Invalid("code section language required")
		}
		pending[norm] = code
	}
	if target != "" {
		target = NormalizeLanguage(target)
		code, ok := pending[target]
		pending = map[string]string{}
		if ok {
			pending[target] = code
		}
	}

	// Resolve every touched block before changing any of them so a bad ref
	// leaves the store as it was.
	touched := make(map[string]*Block)
	for _, ref := range existing {
		if _, ok := pending[ref.Language]; !ok {
			continue
		}
		if _, seen := touched[ref.Language]; seen {
			continue
		}
		b, ok := s.blocks[ref.BlockID]
		if !ok {
			return nil, types.NotFound("code block", ref.BlockID)
		}
		touched[ref.Language] = b
	}

	out := make([]Ref, 0, len(existing)+len(pending))
	for _, ref := range existing {
		code, ok := pending[ref.Language]
		if !ok {
			out = append(out, ref)
			continue
		}
		delete(pending, ref.Language)

		b := touched[ref.Language]
		if b.Current().Content == code {
			s.addTurnRef(b, turnID)
			out = append(out, ref)
			continue
		}
		v, err := s.AddVersion(b.ID, code, turnID, "")
		if err != nil {
			return nil, err
		}
		out = append(out, Ref{
			BlockID:   b.ID,
			VersionID: v.ID,
			Language:  ref.Language,
			Label:     b.Label(),
		})
	}

	langs := make([]string, 0, len(pending))
	for lang := range pending {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		b, err := s.CreateBlock(lang, pending[lang], turnID, Meta{})
		if err != nil {
			return nil, err
		}
		out = append(out, Ref{
			BlockID:   b.ID,
			VersionID: b.CurrentVersionID,
			Language:  b.Language,
			Label:     b.Label(),
		})
	}

	logging.CodeBlockDebug("extracted %d refs for turn %s (target=%q)", len(out), turnID, target)
	return out, nil
}

// StripCodeSections replaces each fenced block in response with a short
// placeholder naming its language.
func StripCodeSections(response string) string {
	return fencePattern.ReplaceAllStringFunc(response, func(fence string) string {
		m := fencePattern.FindStringSubmatch(fence)
		lang := NormalizeLanguage(m[1])
		if lang == "" {
			lang = DetectLanguage(m[2])
		}
		return "[" + lang + " code]"
	})
}
