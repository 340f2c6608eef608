// Package render turns model output into the HTML shown in the chat screen.
//
// FormatResponse runs on the backend and converts the LLM's markdown into a
// small HTML subset. Decorate runs in the web client and adds copy buttons to
// that HTML.
package render

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	fencePattern   = regexp.MustCompile("(?s)```(\\w+)?\\s*(.*?)\\s*```")
	inlinePattern  = regexp.MustCompile("`([^`]+)`")
	boldPattern    = regexp.MustCompile(`\*\*(.*?)\*\*`)
	emPattern      = regexp.MustCompile(`\*(.*?)\*`)
	h3Pattern      = regexp.MustCompile(`(?m)^### (.*?)$`)
	h2Pattern      = regexp.MustCompile(`(?m)^## (.*?)$`)
	h1Pattern      = regexp.MustCompile(`(?m)^# (.*?)$`)
	orderedPattern = regexp.MustCompile(`^\d+\. `)

	// Same entity set the client decodes.
	escaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#x27;",
	)
)

// Escape HTML-escapes text using the entity set understood by DecodeEntities.
func Escape(text string) string {
	return escaper.Replace(text)
}

// FormatResponse converts markdown from the model into HTML: fenced and inline
// code, bold, emphasis, headings, bullet and numbered lists and line breaks.
// Fenced blocks are left untouched by the later passes.
func FormatResponse(content string) string {
	var blocks []string
	content = fencePattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := fencePattern.FindStringSubmatch(match)
		lang := groups[1]
		if lang == "" {
			lang = "text"
		}
		blocks = append(blocks, fmt.Sprintf(`<pre><code class="language-%s">%s</code></pre>`,
			lang, Escape(strings.TrimSpace(groups[2]))))
		return placeholder(len(blocks) - 1)
	})

	content = inlinePattern.ReplaceAllStringFunc(content, func(match string) string {
		return "<code>" + Escape(match[1:len(match)-1]) + "</code>"
	})

	content = boldPattern.ReplaceAllString(content, "<strong>$1</strong>")
	content = emPattern.ReplaceAllString(content, "<em>$1</em>")

	content = h3Pattern.ReplaceAllString(content, "<h3>$1</h3>")
	content = h2Pattern.ReplaceAllString(content, "<h2>$1</h2>")
	content = h1Pattern.ReplaceAllString(content, "<h1>$1</h1>")

	content = wrapList(content, "ul", func(line string) (string, bool) {
		if strings.HasPrefix(line, "- ") {
			return line[2:], true
		}
		return "", false
	})
	content = wrapList(content, "ol", func(line string) (string, bool) {
		if loc := orderedPattern.FindStringIndex(line); loc != nil {
			return line[loc[1]:], true
		}
		return "", false
	})

	content = strings.ReplaceAll(content, "\n\n", "<br><br>")
	content = strings.ReplaceAll(content, "\n", "<br>")

	for i, block := range blocks {
		content = strings.Replace(content, placeholder(i), block, 1)
	}
	return content
}

func placeholder(i int) string {
	return fmt.Sprintf("\x00code%d\x00", i)
}

// wrapList groups consecutive lines accepted by item into a <tag> list.
func wrapList(content, tag string, item func(line string) (string, bool)) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	open := false
	for _, line := range lines {
		body, ok := item(line)
		if ok {
			if !open {
				out = append(out, "<"+tag+">")
				open = true
			}
			out = append(out, "<li>"+body+"</li>")
			continue
		}
		if open {
			out = append(out, "</"+tag+">")
			open = false
		}
		out = append(out, line)
	}
	if open {
		out = append(out, "</"+tag+">")
	}
	return strings.Join(out, "\n")
}
