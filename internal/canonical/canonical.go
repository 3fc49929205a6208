// Package canonical normalizes raw synced emails into the single textual
// representation consumed by extraction, planning, and evidence grounding.
// Build is a pure function: identical raw input yields byte-identical
// canonical text.
package canonical

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/signals/internal/model"
)

// maxLinks caps how many unique URLs are extracted from a body.
const maxLinks = 50

// Reply/forward separators. The body is truncated at the first line
// matching any of these; everything below is quoted history.
var replySeparators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^On .{1,200} wrote:\s*$`),
	regexp.MustCompile(`^-{2,}\s*Original Message\s*-{2,}`),
	regexp.MustCompile(`(?i)^Begin forwarded message:`),
	regexp.MustCompile(`(?i)^-{2,}\s*Forwarded message\s*-{2,}`),
	regexp.MustCompile(`(?i)^From:\s.+$`),
	regexp.MustCompile(`^_{5,}\s*$`),
}

var (
	tagRe        = regexp.MustCompile(`(?s)<[^>]*>`)
	scriptRe     = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	urlRe        = regexp.MustCompile(`https?://[^\s<>"'\)\]]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Build derives the canonical event for an email. It never fails: empty or
// garbage input produces an event with an empty body.
func Build(email *model.SyncedEmail) model.CanonicalEmailEvent {
	body := bestBody(email)
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = truncateAtReply(body)
	body = stripQuotedLines(body)

	links := extractLinks(body)

	body = norm.NFC.String(body)
	body = whitespaceRe.ReplaceAllString(body, " ")
	body = strings.TrimSpace(body)

	return model.CanonicalEmailEvent{
		EmailID:  email.ID,
		ThreadID: email.ThreadID,
		Subject:  email.Subject,
		FromName: email.FromName,
		From:     email.FromEmail,
		SentAt:   email.SentAt,
		Body:     body,
		Links:    links,
	}
}

// bestBody picks the richest available body source: preview text, then
// HTML-stripped body, then snippet.
func bestBody(email *model.SyncedEmail) string {
	if s := strings.TrimSpace(email.PreviewText); s != "" {
		return s
	}
	if s := strings.TrimSpace(email.HTMLBody); s != "" {
		return stripHTML(s)
	}
	return strings.TrimSpace(email.Snippet)
}

// stripHTML removes script/style blocks and tags, and decodes the handful
// of entities that show up in email bodies.
func stripHTML(html string) string {
	text := scriptRe.ReplaceAllString(html, " ")
	// Preserve line structure for block-level breaks so reply separators
	// still match line starts.
	for _, br := range []string{"<br>", "<br/>", "<br />", "</p>", "</div>", "</tr>", "</li>"} {
		text = strings.ReplaceAll(text, br, "\n")
		text = strings.ReplaceAll(text, strings.ToUpper(br), "\n")
	}
	text = tagRe.ReplaceAllString(text, " ")
	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
	return replacer.Replace(text)
}

func truncateAtReply(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, sep := range replySeparators {
			if sep.MatchString(trimmed) {
				return strings.Join(lines[:i], "\n")
			}
		}
	}
	return body
}

func stripQuotedLines(body string) string {
	lines := strings.Split(body, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// extractLinks pulls up to maxLinks unique URLs in order of appearance.
// Label hints are not recoverable from plain text, so they are always nil.
func extractLinks(body string) []model.Link {
	matches := urlRe.FindAllString(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var links []model.Link
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		links = append(links, model.Link{URL: m})
		if len(links) == maxLinks {
			break
		}
	}
	return links
}
