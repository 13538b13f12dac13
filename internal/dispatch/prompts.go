package dispatch

import (
	"strings"

	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// System personas. Security search and web search share the same
// augmentation shape but differ in persona text.
const (
	plainChatSystem = "You are Sofia, a helpful and friendly AI assistant. " +
		"Answer conversationally and concisely."

	webSearchSystem = "You are Sofia, a helpful AI assistant with access to live web search results. " +
		"Use the provided search context to answer accurately, and cite sources when the context includes them."

	securitySearchSystem = "You are Sofia, a cybersecurity research assistant. " +
		"Use the provided search context to explain vulnerabilities, advisories, and mitigations precisely, " +
		"and cite sources when the context includes them. Never provide working exploit code."

	codeScanSystem = "You are Sofia, a senior application security reviewer. " +
		"Analyze the submitted code for security issues and produce the report in the exact Markdown structure requested."

	multimodalSystem = "You are Sofia, a helpful AI assistant. " +
		"Describe and answer questions about the attached content accurately."
)

// codeScanTemplate is the structured report the code-security provider is
// instructed to fill in Markdown.
const codeScanTemplate = `Review the following code for security vulnerabilities and respond in Markdown with exactly this structure:

## Findings
For each issue, ordered from most to least severe:
- **Severity**: Critical / High / Medium / Low
- **Issue**: what is wrong and where
- **Remediation**: a corrected code snippet

## Overall Rating
One of: Secure / Needs Improvement / Vulnerable, with a one-sentence justification.

Code to review:
`

// defaultImageInstruction is injected only when an image arrives with no
// other textual content.
const defaultImageInstruction = "Describe this image."

// BuildBundle assembles the mode-specific prompt bundle from the request
// text, gathered context, and any inline attachments.
func BuildBundle(mode models.OperatingMode, text string, bundle *models.ContextBundle, inline []models.InlineData) *models.PromptBundle {
	pb := &models.PromptBundle{
		Text:   text,
		Inline: inline,
	}
	if bundle != nil {
		pb.History = bundle.History
	}

	switch mode {
	case models.ModeCodeSecurityScan:
		pb.System = codeScanSystem
		pb.Text = codeScanTemplate + text

	case models.ModeWebSearch, models.ModeSecuritySearch:
		if mode == models.ModeSecuritySearch {
			pb.System = securitySearchSystem
		} else {
			pb.System = webSearchSystem
		}
		pb.Text = augmentedText(text, bundle)

	case models.ModeMultimodal:
		pb.System = multimodalSystem
		if strings.TrimSpace(pb.Text) == "" && len(inline) > 0 {
			pb.Text = defaultImageInstruction
		}

	default:
		pb.System = plainChatSystem
		if bundle != nil && bundle.HasLibrary {
			pb.Text = augmentedText(text, bundle)
		}
	}

	return pb
}

// augmentedText prepends the gathered context blocks to the user message.
func augmentedText(text string, bundle *models.ContextBundle) string {
	if bundle == nil {
		return text
	}

	var sb strings.Builder
	if bundle.WebContext != "" {
		sb.WriteString("Web search results:\n")
		sb.WriteString(bundle.WebContext)
		sb.WriteString("\n\n")
	}
	if bundle.HasLibrary && bundle.LibraryContext != "" {
		sb.WriteString("Relevant documents from the user's library:\n")
		sb.WriteString(bundle.LibraryContext)
		sb.WriteString("\n\n")
	}
	if sb.Len() == 0 {
		return text
	}
	sb.WriteString("User question: ")
	sb.WriteString(text)
	return sb.String()
}
