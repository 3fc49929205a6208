package canonical

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signals/internal/model"
)

func testEmail(preview, html, snippet string) *model.SyncedEmail {
	return &model.SyncedEmail{
		ID:          "em-1",
		ThreadID:    "th-1",
		Subject:     "Interview confirmed",
		FromName:    "Jordan Lee",
		FromEmail:   "jordan@acme.com",
		SentAt:      time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC),
		PreviewText: preview,
		HTMLBody:    html,
		Snippet:     snippet,
	}
}

func TestBuild_PrefersPreviewText(t *testing.T) {
	ev := Build(testEmail("preview body", "<p>html body</p>", "snippet"))
	assert.Equal(t, "preview body", ev.Body)
}

func TestBuild_FallsBackToStrippedHTML(t *testing.T) {
	ev := Build(testEmail("", "<div>Hello <b>there</b></div><script>var x=1;</script>", "snippet"))
	assert.Equal(t, "Hello there", ev.Body)
}

func TestBuild_FallsBackToSnippet(t *testing.T) {
	ev := Build(testEmail("", "", "just a snippet"))
	assert.Equal(t, "just a snippet", ev.Body)
}

func TestBuild_EmptyInput(t *testing.T) {
	ev := Build(testEmail("", "", ""))
	assert.Equal(t, "", ev.Body)
	assert.Empty(t, ev.Links)
	assert.Equal(t, "em-1", ev.EmailID)
}

func TestBuild_TruncatesReplyChain(t *testing.T) {
	body := "Thanks, see you Wednesday.\n\nOn Tue, Jan 20, 2026 at 9:00 AM Jordan Lee wrote:\n> earlier message\n> more quoted text"
	ev := Build(testEmail(body, "", ""))
	assert.Equal(t, "Thanks, see you Wednesday.", ev.Body)
}

func TestBuild_TruncatesOriginalMessage(t *testing.T) {
	body := "New content here.\n-----Original Message-----\nold content"
	ev := Build(testEmail(body, "", ""))
	assert.Equal(t, "New content here.", ev.Body)
}

func TestBuild_StripsQuotedLines(t *testing.T) {
	body := "My reply.\n> quoted line one\n> quoted line two\nclosing line"
	ev := Build(testEmail(body, "", ""))
	assert.Equal(t, "My reply. closing line", ev.Body)
}

func TestBuild_CollapsesWhitespace(t *testing.T) {
	body := "Hello\t\tworld  \n\n\n  multiple   spaces\r\nhere"
	ev := Build(testEmail(body, "", ""))
	assert.Equal(t, "Hello world multiple spaces here", ev.Body)
}

func TestBuild_Deterministic(t *testing.T) {
	email := testEmail("Some   body\nOn Mon someone wrote:\n> old", "", "")
	first := Build(email)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Build(email))
	}
}

func TestBuild_ExtractsLinks(t *testing.T) {
	body := "Join https://zoom.us/j/123456789. Details at https://acme.com/careers?id=7 and again https://zoom.us/j/123456789"
	ev := Build(testEmail(body, "", ""))
	require.Len(t, ev.Links, 2)
	assert.Equal(t, "https://zoom.us/j/123456789", ev.Links[0].URL)
	assert.Equal(t, "https://acme.com/careers?id=7", ev.Links[1].URL)
	assert.Nil(t, ev.Links[0].LabelHint)
}

func TestBuild_LinkCap(t *testing.T) {
	var body string
	for i := 0; i < 60; i++ {
		body += " https://example.com/page/" + string(rune('a'+i%26)) + "/" + string(rune('0'+i%10))
	}
	ev := Build(testEmail(body, "", ""))
	assert.Len(t, ev.Links, maxLinks)
}
