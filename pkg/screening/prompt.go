package screening

import (
	"fmt"
	"strings"

	"github.com/resumatch/cvscreen/internal/models"
	"github.com/resumatch/cvscreen/pkg/extract"
)

// buildPrompt assembles the evaluation prompt for one candidate. The mandated
// response shape is what parseGrade later relies on: the model is an
// untrusted text source, so a missing grade token falls back to 0 rather
// than failing the document.
func buildPrompt(question, cvText string, profile *models.Profile) string {
	var builder strings.Builder

	builder.WriteString("You are a recruiter. Your task is to evaluate whether this candidate matches the following job need.\n\n")
	builder.WriteString(fmt.Sprintf("Job need:\n%q\n\n", question))

	if profile != nil {
		builder.WriteString("Details extracted automatically from the CV:\n")
		builder.WriteString(extract.Summary(*profile))
		builder.WriteString("\n")
	}

	builder.WriteString("You must:\n")
	builder.WriteString("1. Read the CV content.\n")
	builder.WriteString("2. Give a relevance grade from 0 to 10.\n")
	builder.WriteString("3. Take a decision: Keep or Reject.\n")
	builder.WriteString("4. Give a clear and concise justification in a single paragraph, covering strengths and weaknesses against the need.\n\n")

	builder.WriteString("Mandatory response format:\n")
	builder.WriteString("NOTE: X/10 - Decision: Keep / Reject\n")
	builder.WriteString("Justification: [a single paragraph without line breaks, 3-4 sentences max]\n\n")

	builder.WriteString("CV text:\n")
	builder.WriteString(cvText)
	builder.WriteString("\n")

	return builder.String()
}
