// Package intent maps a raw user message (plus the client-requested mode)
// to an operating mode. Classification is an ordered rule table evaluated
// top-down; rule order is load-bearing and must not change, because
// ambiguous inputs (e.g. "explain this CVE-2024-1234") depend on it.
package intent

import (
	"regexp"
	"strings"

	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// youtubeURLPattern matches the common YouTube URL shapes with an
// 11-character video id.
var youtubeURLPattern = regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/|youtube\.com/shorts/)([A-Za-z0-9_-]{11})`)

// greetingPrefixes short-circuit all other rules: conversational openers
// never trigger a search.
var greetingPrefixes = []string{
	"hi", "hello", "hey", "yo", "thanks", "thank you", "thx",
	"good morning", "good afternoon", "good evening", "good night",
	"how are you", "ok", "okay", "bye", "goodbye",
}

// securityTerms route to the security search persona. Matched against the
// lower-cased message.
var securityTerms = []string{
	"sql injection", "sqli", "xss", "cross-site scripting", "csrf",
	"cve-", "zero-day", "0day", "vulnerability", "vulnerabilities",
	"exploit", "malware", "ransomware", "phishing", "penetration test",
	"pentest", "buffer overflow", "privilege escalation", "rce",
	"remote code execution", "owasp", "security breach", "data breach",
}

// codeTokens indicate pasted source code. Matched case-sensitively against
// the ORIGINAL message, not the lower-cased copy: "SELECT *" and "Select *"
// are different signals.
var codeTokens = []string{
	"func ", "def ", "function ", "class ", "import ", "#include",
	"public static", "SELECT *", "INSERT INTO", "exec(", "eval(",
	"=>", "};", "());",
}

// knowledgeQueryPhrases indicate a general-knowledge question worth
// augmenting with live web results.
var knowledgeQueryPhrases = []string{
	"what is", "what are", "who is", "who are", "when did", "when is",
	"where is", "how to", "how do", "how does", "why is", "why do",
	"explain", "latest", "news", "current", "today", "recent",
	"tell me about", "definition of",
}

// Classifier decides the operating mode for one request.
type Classifier struct {
	// docKeywords maps configured document-trigger keywords (lower case)
	// to stored filenames; any hit forces multimodal handling.
	docKeywords map[string]string
}

// NewClassifier creates a classifier with the configured document keywords.
func NewClassifier(docKeywords map[string]string) *Classifier {
	return &Classifier{docKeywords: docKeywords}
}

// Classify picks exactly one operating mode for the request.
//
// Multimodal content (attachment, YouTube link, document keyword) always
// bypasses text-mode classification, regardless of the requested mode.
// An explicit non-chat mode is honored directly; only the generic chat
// mode runs auto-detection.
func (c *Classifier) Classify(req *models.ChatRequest) models.OperatingMode {
	if c.isMultimodal(req) {
		return models.ModeMultimodal
	}

	mode := models.ParseMode(req.Mode)
	if mode != models.ModePlainChat {
		return mode
	}

	return c.autoDetect(req.Text)
}

// isMultimodal reports whether the request carries non-text content.
func (c *Classifier) isMultimodal(req *models.ChatRequest) bool {
	if req.Attachment != nil && len(req.Attachment.Data) > 0 {
		return true
	}
	if youtubeURLPattern.MatchString(req.Text) {
		return true
	}
	lower := strings.ToLower(req.Text)
	for kw := range c.docKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ExtractYoutubeID returns the 11-character video id embedded in the
// message, or "" if none is present.
func ExtractYoutubeID(text string) string {
	m := youtubeURLPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// MatchDocKeyword returns the stored filename for the first configured
// keyword found in the message, or "" if none matches.
func (c *Classifier) MatchDocKeyword(text string) string {
	lower := strings.ToLower(text)
	for kw, filename := range c.docKeywords {
		if strings.Contains(lower, kw) {
			return filename
		}
	}
	return ""
}

// autoDetect runs the ordered rule table over a chat-mode message.
func (c *Classifier) autoDetect(message string) models.OperatingMode {
	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)

	// 1. Conversational openers: no search.
	for _, g := range greetingPrefixes {
		if lower == g || strings.HasPrefix(lower, g+" ") || strings.HasPrefix(lower, g+",") || strings.HasPrefix(lower, g+"!") {
			return models.ModePlainChat
		}
	}

	// 2. Security terms take precedence over generic code detection.
	for _, term := range securityTerms {
		if strings.Contains(lower, term) {
			return models.ModeSecuritySearch
		}
	}

	// 3. Code-like tokens, case-sensitive against the original message.
	for _, tok := range codeTokens {
		if strings.Contains(trimmed, tok) {
			return models.ModeCodeSecurityScan
		}
	}

	// 4. General-knowledge query phrases.
	for _, phrase := range knowledgeQueryPhrases {
		if strings.Contains(lower, phrase) {
			return models.ModeWebSearch
		}
	}

	// 5. Long messages probably benefit from live context.
	if len(strings.Fields(trimmed)) > 6 {
		return models.ModeWebSearch
	}

	// 6. Everything else is plain chat.
	return models.ModePlainChat
}
