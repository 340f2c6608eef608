package render

import (
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	nethtml "golang.org/x/net/html"
)

var (
	codeBlockPattern = regexp.MustCompile(`(?s)<pre><code class="language-(\w+)">(.*?)</code></pre>`)

	assistantPolicy = newAssistantPolicy()

	blockedElements = "script,style,iframe,object,embed,link,meta,form,base"
)

// newAssistantPolicy accepts the markup FormatResponse produces plus ordinary
// user-generated HTML. URLs must parse and use http, https or mailto.
func newAssistantPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("p", "pre", "code", "strong", "em", "h1", "h2", "h3", "ul", "ol", "li", "br")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^language-\w+$`)).OnElements("code")
	return p
}

// DecodeEntities reverses Escape.
func DecodeEntities(text string) string {
	return html.UnescapeString(text)
}

// Message renders one chat message for display. User text is escaped;
// assistant HTML is decorated with copy buttons.
func Message(role, content string) template.HTML {
	if role == "assistant" {
		return Decorate(content, true)
	}
	return Decorate(Escape(content), false)
}

// Decorate wraps every fenced code block with a header carrying the language
// and a copy button. Assistant HTML is sanitized first, then gets a button
// that copies the whole response as plain text. Copy payloads travel in
// data-copy attributes.
func Decorate(content string, assistant bool) template.HTML {
	if assistant {
		content = assistantPolicy.Sanitize(content)
	}
	decorated := codeBlockPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := codeBlockPattern.FindStringSubmatch(match)
		lang, code := groups[1], groups[2]
		return fmt.Sprintf(
			`<div class="code-block"><div class="code-header"><span class="code-lang">%s</span>%s</div><pre><code class="language-%s">%s</code></pre></div>`,
			lang, copyButton(DecodeEntities(code), "Copiar"), lang, code,
		)
	})

	if assistant {
		decorated += `<div class="message-actions">` + copyButton(PlainText(content), "Copiar resposta") + `</div>`
	}
	return template.HTML(decorated)
}

func copyButton(payload, label string) string {
	return `<button type="button" class="copy-button" data-copy="` + html.EscapeString(payload) +
		`">📋 <span class="copy-label">` + label + `</span></button>`
}

// PlainText strips markup from rendered message HTML, keeping line breaks.
func PlainText(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return strings.TrimSpace(DecodeEntities(content))
	}
	body := doc.Find("body")
	body.Find(blockedElements).Remove()
	body.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithNodes(newline())
	})
	body.Find("li").Each(func(_ int, s *goquery.Selection) {
		s.AppendNodes(newline())
	})
	return strings.TrimSpace(body.Text())
}

func newline() *nethtml.Node {
	return &nethtml.Node{Type: nethtml.TextNode, Data: "\n"}
}

// Clock formats a message time as HH:MM in the server's zone.
func Clock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("15:04")
}
