package intent_test

import (
	"testing"

	"github.com/sofia-labs/sofia/orchestrator/internal/intent"
	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

func TestClassify_AutoDetect(t *testing.T) {
	c := intent.NewClassifier(nil)

	tests := []struct {
		name string
		text string
		want models.OperatingMode
	}{
		{"greeting", "hello there", models.ModePlainChat},
		{"greeting with comma", "hi, can you help me", models.ModePlainChat},
		{"thanks", "thanks a lot", models.ModePlainChat},
		{"security term", "how does sql injection work", models.ModeSecuritySearch},
		{"cve reference", "explain this CVE-2024-1234", models.ModeSecuritySearch},
		{"zero day", "what is a zero-day exploit", models.ModeSecuritySearch},
		{"code tokens", "review this: func main() { exec(cmd) }", models.ModeCodeSecurityScan},
		{"sql code", "is SELECT * FROM users safe", models.ModeCodeSecurityScan},
		{"knowledge query", "what is the capital of France", models.ModeWebSearch},
		{"latest news", "latest developments in fusion power", models.ModeWebSearch},
		{"long message", "please compare the economic policies of these two countries for me", models.ModeWebSearch},
		{"short statement", "nice weather", models.ModePlainChat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(&models.ChatRequest{Text: tt.text})
			if got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

// Rule order is load-bearing: a security term wins even when the message
// also contains a knowledge-query phrase.
func TestClassify_SecurityBeatsKnowledgeQuery(t *testing.T) {
	c := intent.NewClassifier(nil)

	got := c.Classify(&models.ChatRequest{Text: "what is cross-site scripting"})
	if got != models.ModeSecuritySearch {
		t.Errorf("Classify() = %q, want %q", got, models.ModeSecuritySearch)
	}
}

// Code detection is case-sensitive against the original message.
func TestClassify_CodeTokensCaseSensitive(t *testing.T) {
	c := intent.NewClassifier(nil)

	// Lower-cased "select *" is not a code token; the phrase "how do"
	// makes this a knowledge query instead.
	got := c.Classify(&models.ChatRequest{Text: "how do i write select * queries"})
	if got != models.ModeWebSearch {
		t.Errorf("Classify() = %q, want %q", got, models.ModeWebSearch)
	}
}

func TestClassify_ExplicitModeHonored(t *testing.T) {
	c := intent.NewClassifier(nil)

	// "hello" would auto-detect as plain chat, but the client asked for
	// web search explicitly.
	got := c.Classify(&models.ChatRequest{Text: "hello", Mode: "web_search"})
	if got != models.ModeWebSearch {
		t.Errorf("Classify() = %q, want %q", got, models.ModeWebSearch)
	}

	got = c.Classify(&models.ChatRequest{Text: "review my code", Mode: "code_security_scan"})
	if got != models.ModeCodeSecurityScan {
		t.Errorf("Classify() = %q, want %q", got, models.ModeCodeSecurityScan)
	}
}

func TestClassify_UnknownModeFallsBack(t *testing.T) {
	c := intent.NewClassifier(nil)

	got := c.Classify(&models.ChatRequest{Text: "what is rust", Mode: "turbo"})
	// Unknown mode falls back to chat, which auto-detects a knowledge query.
	if got != models.ModeWebSearch {
		t.Errorf("Classify() = %q, want %q", got, models.ModeWebSearch)
	}
}

// Multimodal content bypasses everything, including an explicit mode.
func TestClassify_AttachmentForcesMultimodal(t *testing.T) {
	c := intent.NewClassifier(nil)

	req := &models.ChatRequest{
		Text:       "what is sql injection",
		Mode:       "security_search",
		Attachment: &models.Attachment{Data: []byte{0x89, 0x50}, MimeType: "image/png"},
	}
	if got := c.Classify(req); got != models.ModeMultimodal {
		t.Errorf("Classify() with attachment = %q, want %q", got, models.ModeMultimodal)
	}
}

func TestClassify_YoutubeLinkForcesMultimodal(t *testing.T) {
	c := intent.NewClassifier(nil)

	for _, text := range []string{
		"summarize https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"check https://youtu.be/dQw4w9WgXcQ please",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ",
	} {
		if got := c.Classify(&models.ChatRequest{Text: text}); got != models.ModeMultimodal {
			t.Errorf("Classify(%q) = %q, want %q", text, got, models.ModeMultimodal)
		}
	}
}

func TestClassify_DocKeywordForcesMultimodal(t *testing.T) {
	c := intent.NewClassifier(map[string]string{"employee handbook": "handbook.pdf"})

	got := c.Classify(&models.ChatRequest{Text: "what does the Employee Handbook say about leave"})
	if got != models.ModeMultimodal {
		t.Errorf("Classify() with doc keyword = %q, want %q", got, models.ModeMultimodal)
	}

	if f := c.MatchDocKeyword("show me the employee handbook"); f != "handbook.pdf" {
		t.Errorf("MatchDocKeyword() = %q, want %q", f, "handbook.pdf")
	}
	if f := c.MatchDocKeyword("unrelated question"); f != "" {
		t.Errorf("MatchDocKeyword() = %q, want empty", f)
	}
}

func TestExtractYoutubeID(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"see https://youtu.be/abc123DEF45 now", "abc123DEF45"},
		{"https://www.youtube.com/embed/abc123DEF45", "abc123DEF45"},
		{"no link here", ""},
		{"https://youtu.be/short", ""},
	}

	for _, tt := range tests {
		if got := intent.ExtractYoutubeID(tt.text); got != tt.want {
			t.Errorf("ExtractYoutubeID(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
