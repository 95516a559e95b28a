package source

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Body holds the renderable parts of a parsed message.
type Body struct {
	Text string
	HTML string
}

// PlainText returns the text part, falling back to stripped HTML.
func (b Body) PlainText() string {
	if strings.TrimSpace(b.Text) != "" {
		return b.Text
	}
	return StripHTML(b.HTML)
}

// ParseMIME parses a raw RFC 2822 message using go-message and extracts
// the first text/plain and text/html parts. Attachments are skipped.
func ParseMIME(raw []byte) Body {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// If parsing fails, treat the whole thing as plain text.
		return Body{Text: string(raw)}
	}
	defer mr.Close()

	var body Body
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		data, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && body.Text == "":
			body.Text = string(data)
		case strings.HasPrefix(contentType, "text/html") && body.HTML == "":
			body.HTML = string(data)
		}
	}

	return body
}

// htmlTagPattern matches HTML tags for stripping.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes HTML tags from a string and decodes common entities,
// providing a basic plain-text rendering with line breaks preserved.
func StripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>", "</tr>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	result = replacer.Replace(result)

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}
