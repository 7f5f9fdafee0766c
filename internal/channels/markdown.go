package channels

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	codeBlockRe      = regexp.MustCompile("(?s)```[\\w]*\\n?([\\s\\S]*?)```")
	inlineCodeRe     = regexp.MustCompile("`([^`]+)`")
	headerRe         = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	quoteRe          = regexp.MustCompile(`(?m)^>\s*(.*)$`)
	linkRe           = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	boldStarRe       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldUnderscoreRe = regexp.MustCompile(`__(.+?)__`)
	italicRe         = regexp.MustCompile(`(?m)(^|[^A-Za-z0-9])_([^_]+)_([^A-Za-z0-9]|$)`)
	strikeRe         = regexp.MustCompile(`~~(.+?)~~`)
	bulletRe         = regexp.MustCompile(`(?m)^[-*]\s+`)
)

// markdownToTelegramHTML converts common markdown to the HTML subset
// Telegram accepts. Code spans are lifted out before escaping so their
// contents survive untouched.
func markdownToTelegramHTML(text string) string {
	if text == "" {
		return ""
	}

	var codeBlocks []string
	text = codeBlockRe.ReplaceAllStringFunc(text, func(m string) string {
		body := codeBlockRe.FindStringSubmatch(m)[1]
		codeBlocks = append(codeBlocks, body)
		return fmt.Sprintf("\x01CB%d\x02", len(codeBlocks)-1)
	})

	var inlineCodes []string
	text = inlineCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		body := inlineCodeRe.FindStringSubmatch(m)[1]
		inlineCodes = append(inlineCodes, body)
		return fmt.Sprintf("\x01IC%d\x02", len(inlineCodes)-1)
	})

	text = headerRe.ReplaceAllString(text, "$1")
	text = quoteRe.ReplaceAllString(text, "$1")
	text = escapeHTML(text)
	text = linkRe.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = boldStarRe.ReplaceAllString(text, "<b>$1</b>")
	text = boldUnderscoreRe.ReplaceAllString(text, "<b>$1</b>")
	text = italicRe.ReplaceAllString(text, "$1<i>$2</i>$3")
	text = strikeRe.ReplaceAllString(text, "<s>$1</s>")
	text = bulletRe.ReplaceAllString(text, "• ")

	for i, code := range inlineCodes {
		token := fmt.Sprintf("\x01IC%d\x02", i)
		text = strings.ReplaceAll(text, token, "<code>"+escapeHTML(code)+"</code>")
	}
	for i, code := range codeBlocks {
		token := fmt.Sprintf("\x01CB%d\x02", i)
		text = strings.ReplaceAll(text, token, "<pre><code>"+escapeHTML(code)+"</code></pre>")
	}

	return text
}

func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}
