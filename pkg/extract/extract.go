// Package extract pulls structured signals out of raw CV text with pattern
// matching. Extraction is a pure function: absent matches produce empty
// slices, never errors.
package extract

import (
	"regexp"
	"strings"

	"github.com/resumatch/cvscreen/internal/models"
)

var (
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)
	linkedinPattern = regexp.MustCompile(`(?:https?://)?(?:www\.)?linkedin\.com/in/[a-zA-Z0-9\-_/]+`)
	githubPattern   = regexp.MustCompile(`(?:https?://)?(?:www\.)?github\.com/[a-zA-Z0-9\-_/]+`)

	// Degree keywords with trailing context up to the next comma or line break.
	educationPattern = regexp.MustCompile(`(?i)(?:Licence|Master|Ing[ée]nieur|Doctorat|Ph\.?D|Bac\+3|Bac\+5)[^,\n]*`)

	// A line introducing a project block, optionally bulleted.
	projectHeader = regexp.MustCompile(`(?mi)^[ \t\-•]*projets?\s*[:\-–]\s*`)
)

// Extract runs every recognizer over the merged CV text.
func Extract(text string) models.Profile {
	return models.Profile{
		Emails:    emailPattern.FindAllString(text, -1),
		LinkedIn:  linkedinPattern.FindAllString(text, -1),
		GitHub:    githubPattern.FindAllString(text, -1),
		Education: trimAll(educationPattern.FindAllString(text, -1)),
		Projects:  extractProjects(text),
	}
}

// extractProjects captures each block introduced by a "projet(s):" line, up to
// the next such line or the end of the document. Embedded line breaks are
// collapsed to spaces.
func extractProjects(text string) []string {
	headers := projectHeader.FindAllStringIndex(text, -1)
	if len(headers) == 0 {
		return nil
	}

	projects := make([]string, 0, len(headers))
	for i, header := range headers {
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}

		block := strings.TrimSpace(text[header[1]:end])
		if block == "" {
			continue
		}
		projects = append(projects, strings.Join(strings.Fields(block), " "))
	}

	return projects
}

// Summary renders the profile as the human-readable block embedded into the
// grading prompt.
func Summary(p models.Profile) string {
	var builder strings.Builder
	builder.WriteString("Emails: " + strings.Join(p.Emails, ", ") + "\n")
	builder.WriteString("LinkedIn: " + strings.Join(p.LinkedIn, ", ") + "\n")
	builder.WriteString("GitHub: " + strings.Join(p.GitHub, ", ") + "\n")
	builder.WriteString("Education: " + strings.Join(p.Education, ", ") + "\n")
	builder.WriteString("Projects: " + strings.Join(p.Projects, ", ") + "\n")
	return builder.String()
}

func trimAll(values []string) []string {
	for i, v := range values {
		values[i] = strings.TrimSpace(v)
	}
	return values
}
