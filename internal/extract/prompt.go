package extract

import (
	"fmt"
	"strings"

	"github.com/sells-group/signals/internal/model"
)

const systemPrompt = `You classify job-search emails and extract structured facts from them.
Respond with a single JSON object and nothing else. No prose, no markdown fences.

The object must have this shape:
{
  "classification": {"kind": "scheduling|outcome|offer|rejection|feedback|job_alert|recruiter_outreach|other"},
  "extraction": {"confidence": 0.0-1.0},
  "company": "string (optional)",
  "role": "string (optional)",
  "scheduling": {"stage": "...", "stage_name": "...", "scheduled_at": "RFC3339", "duration_minutes": 0, "interviewer_name": "...", "video_link": "..."} (only for scheduling emails),
  "outcome": {"result": "passed|failed"} (only for outcome emails),
  "feedback": {"summary": "...", "sentiment": "..."} (only for feedback emails),
  "listing_url": "string (only when the email links to a specific job listing)"
}

Rules:
- Copy names, links, and companies verbatim from the email text.
- Omit optional fields you are not sure about rather than guessing.
- confidence reflects how certain you are about the classification and the extracted values together.`

func buildPrompt(ev model.CanonicalEmailEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", ev.Subject)
	fmt.Fprintf(&b, "From: %s <%s>\n", ev.FromName, ev.From)
	if !ev.SentAt.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", ev.SentAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	b.WriteString("\nBody:\n")
	b.WriteString(ev.Body)
	if len(ev.Links) > 0 {
		b.WriteString("\n\nLinks:\n")
		for _, l := range ev.Links {
			b.WriteString("- " + l.URL + "\n")
		}
	}
	return b.String()
}

// cleanJSON strips markdown fences and any prose around the first JSON
// object in an LLM response.
func cleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}
