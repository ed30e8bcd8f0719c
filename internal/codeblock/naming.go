package codeblock

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

var (
	htmlDocPattern   = regexp.MustCompile(`(?i)<!doctype html|<html[\s>]`)
	htmlTitlePattern = regexp.MustCompile(`(?is)<title>(.*?)</title>`)
	htmlTagPattern   = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9-]*)[\s>/]`)
	componentPattern = regexp.MustCompile(`(?m)^\s*(?:export\s+(?:default\s+)?)?(?:function|const|class)\s+([A-Z][A-Za-z0-9]*)`)
	cssRulePattern   = regexp.MustCompile(`(?m)^[^{}@\n][^{}\n]*\{`)
	cssSelectorPat   = regexp.MustCompile(`(?m)^\s*([.#]?[A-Za-z][\w-]*)[^{\n]*\{`)
	pyDefPattern     = regexp.MustCompile(`(?m)^\s*(def|class)\s+\w+.*:\s*$`)
	pyImportPattern  = regexp.MustCompile(`(?m)^\s*(from\s+\S+\s+)?import\s+\w+\s*$`)
	jsKeywordPattern = regexp.MustCompile(`\b(function|const|let)\b|=>|\bvar\s+\w`)
)

// DetectLanguage guesses the language of an untagged snippet. Pure heuristic;
// returns "text" when nothing matches.
func DetectLanguage(code string) string {
	trimmed := strings.TrimSpace(code)
	switch {
	case htmlDocPattern.MatchString(trimmed), strings.HasPrefix(trimmed, "<") && htmlTagPattern.MatchString(trimmed):
		return "html"
	case strings.HasPrefix(trimmed, "package "):
		return "go"
	case pyDefPattern.MatchString(code),
		pyImportPattern.MatchString(code) && !strings.Contains(code, ";"):
		return "python"
	case jsKeywordPattern.MatchString(code):
		return "javascript"
	case cssRulePattern.MatchString(code) && strings.Contains(code, ":") && strings.Contains(code, ";"):
		return "css"
	default:
		return "text"
	}
}

// InferName derives a human-readable label from content. Best effort only;
// returns "" when no heuristic applies. Never used for identity.
func InferName(language, content string) string {
	switch NormalizeLanguage(language) {
	case "html":
		if htmlDocPattern.MatchString(content) {
			if m := htmlTitlePattern.FindStringSubmatch(content); m != nil && strings.TrimSpace(m[1]) != "" {
				return "Page: " + strings.TrimSpace(m[1])
			}
			return "HTML document"
		}
		if m := htmlTagPattern.FindStringSubmatch(content); m != nil {
			return fmt.Sprintf("<%s> fragment", strings.ToLower(m[1]))
		}
	case "css":
		rules := cssRulePattern.FindAllString(content, -1)
		if len(rules) == 0 {
			return ""
		}
		count := fmt.Sprintf("%d rules", len(rules))
		if len(rules) == 1 {
			count = "1 rule"
		}
		if m := cssSelectorPat.FindStringSubmatch(content); m != nil {
			return fmt.Sprintf("Styles for %s (%s)", m[1], count)
		}
		return "Stylesheet (" + count + ")"
	case "javascript", "typescript":
		if m := componentPattern.FindStringSubmatch(content); m != nil {
			return m[1] + " component"
		}
		if s := summarizeSymbols(javascript.GetLanguage(), content, jsSymbol); s != "" {
			return s
		}
	case "python":
		return summarizeSymbols(python.GetLanguage(), content, pythonSymbol)
	case "go":
		return summarizeSymbols(golang.GetLanguage(), content, goSymbol)
	}
	return ""
}

// symbolFunc classifies a top-level node as "class", "func" or "" and names it.
type symbolFunc func(n *sitter.Node, src []byte) (kind, name string)

// summarizeSymbols parses content and labels it by its top-level symbols:
// the first class when there is one, else the first function plus a count.
func summarizeSymbols(lang *sitter.Language, content string, classify symbolFunc) (label string) {
	defer func() {
		if recover() != nil {
			label = ""
		}
	}()

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	src := []byte(content)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil || tree == nil {
		return ""
	}
	defer tree.Close()

	root := tree.RootNode()
	var firstClass, firstFunc string
	funcs := 0
	for i := 0; i < int(root.NamedChildCount()); i++ {
		kind, name := classify(root.NamedChild(i), src)
		switch kind {
		case "class":
			if firstClass == "" {
				firstClass = name
			}
		case "func":
			funcs++
			if firstFunc == "" {
				firstFunc = name
			}
		}
	}

	switch {
	case firstClass != "":
		return firstClass
	case funcs == 1:
		return firstFunc + "()"
	case funcs > 1:
		return fmt.Sprintf("%s() and %d more", firstFunc, funcs-1)
	}
	return ""
}

func fieldText(n *sitter.Node, field string, src []byte) string {
	if c := n.ChildByFieldName(field); c != nil {
		return c.Content(src)
	}
	return ""
}

func pythonSymbol(n *sitter.Node, src []byte) (string, string) {
	if n.Type() == "decorated_definition" {
		if def := n.ChildByFieldName("definition"); def != nil {
			n = def
		}
	}
	switch n.Type() {
	case "class_definition":
		return "class", "class " + fieldText(n, "name", src)
	case "function_definition":
		return "func", fieldText(n, "name", src)
	}
	return "", ""
}

func goSymbol(n *sitter.Node, src []byte) (string, string) {
	switch n.Type() {
	case "type_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if spec := n.NamedChild(i); spec.Type() == "type_spec" {
				return "class", "type " + fieldText(spec, "name", src)
			}
		}
	case "function_declaration", "method_declaration":
		return "func", fieldText(n, "name", src)
	}
	return "", ""
}

func jsSymbol(n *sitter.Node, src []byte) (string, string) {
	if n.Type() == "export_statement" {
		if decl := n.ChildByFieldName("declaration"); decl != nil {
			n = decl
		}
	}
	switch n.Type() {
	case "class_declaration":
		return "class", "class " + fieldText(n, "name", src)
	case "function_declaration", "generator_function_declaration":
		return "func", fieldText(n, "name", src)
	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			d := n.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			if v := d.ChildByFieldName("value"); v != nil && (v.Type() == "arrow_function" || v.Type() == "function") {
				return "func", fieldText(d, "name", src)
			}
		}
	}
	return "", ""
}
