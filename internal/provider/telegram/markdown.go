// ABOUTME: Renders runtime markdown into Telegram's restricted HTML subset.
// ABOUTME: Converts via goldmark, then rewrites block tags and strips unsupported markup.

package telegram

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
)

// blockRewrites maps goldmark's block-level output onto plain text
// structure Telegram can display. Telegram supports only inline markup
// plus pre and blockquote.
var blockRewrites = strings.NewReplacer(
	"<p>", "",
	"</p>", "\n",
	"<br>", "\n",
	"<br/>", "\n",
	"<br />", "\n",
	"<ul>", "",
	"</ul>", "",
	"<ol>", "",
	"</ol>", "",
	"<li>", "• ",
	"</li>", "",
	"<hr>", "\n",
	"<hr/>", "\n",
	"<hr />", "\n",
	"<strong>", "<b>",
	"</strong>", "</b>",
	"<em>", "<i>",
	"</em>", "</i>",
	"<del>", "<s>",
	"</del>", "</s>",
	"<h1>", "<b>",
	"<h2>", "<b>",
	"<h3>", "<b>",
	"<h4>", "<b>",
	"<h5>", "<b>",
	"<h6>", "<b>",
	"</h1>", "</b>\n",
	"</h2>", "</b>\n",
	"</h3>", "</b>\n",
	"</h4>", "</b>\n",
	"</h5>", "</b>\n",
	"</h6>", "</b>\n",
)

var (
	anyTag = regexp.MustCompile(`<[^>]*>`)
	// Tags Telegram's HTML parse mode accepts, post-rewrite.
	allowedTag = regexp.MustCompile(`^</?(b|i|s|u|pre|blockquote)>$|^<code( class="[^"]*")?>$|^</code>$|^<a href="[^"]*">$|^</a>$`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

// renderHTML converts markdown to the HTML subset Telegram accepts.
// Entities stay escaped; tags outside the subset are dropped rather
// than escaped so rejected markup never reaches the user as noise.
func renderHTML(markdown string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return html.EscapeString(markdown)
	}

	s := blockRewrites.Replace(buf.String())
	s = anyTag.ReplaceAllStringFunc(s, func(tag string) string {
		if allowedTag.MatchString(tag) {
			return tag
		}
		return ""
	})
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
