package retrieval

import (
	"fmt"
	"strings"

	"codeloom/internal/codeblock"
	"codeloom/internal/conversation"
)

// render lays out turns chronologically followed by the selected code.
// Fenced code inside responses is replaced by a placeholder since the
// current version of each block is listed separately.
func render(turns []*conversation.Turn, code []CodeContext) string {
	var sb strings.Builder

	if len(turns) > 0 {
		sb.WriteString("## Conversation\n")
		for i := len(turns) - 1; i >= 0; i-- {
			t := turns[i]
			fmt.Fprintf(&sb, "\nUser: %s\n", strings.TrimSpace(t.Prompt))
			if resp := strings.TrimSpace(codeblock.StripCodeSections(t.Response)); resp != "" {
				fmt.Fprintf(&sb, "Assistant: %s\n", resp)
			}
		}
	}

	if len(code) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("## Code\n")
		for _, c := range code {
			fmt.Fprintf(&sb, "\n### %s (%s)\n```%s\n%s\n```\n", c.Label, c.Language, c.Language, c.Content)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}
