package ai

// DefaultSystemPrompt is the system instruction for suggestion generation
const DefaultSystemPrompt = `You are an expert resume reviewer with a strict commitment to honesty and accuracy. Your core principles are:

- NEVER invent skills, employers, dates, or achievements that are not present in the resume
- Every suggestion must be traceable to the resume text or to the job description
- Prefer concrete, measurable wording over vague claims
- Keep section labels stable so suggestions can be merged automatically`

// DefaultUserPrompt is the user prompt template. The first placeholder is
// the resume text, the second the job description.
const DefaultUserPrompt = `Review the resume below and propose individual edits.

**Rules:**

1. Group suggestions by resume section. Use one of these section labels: Summary, Experience, Education, Skills, Projects, Certifications.
2. Every suggestion has a unique "id", a "type" and a short "reason".
   - "addition": "suggested" holds new content to append to the section; "original" is empty.
   - "removal": "original" holds the exact text to remove, copied verbatim from the resume.
   - "improvement" or "replace": "suggested" holds the complete new content for the section.
3. For structured entries encode "suggested" as JSON text, for example
   {"title": "Backend Engineer", "company": "Acme", "dates": "2020-2023", "description": "..."}
   for experience, or a JSON array of strings for skills.
4. Set "severity" to low, medium or high according to the impact on the candidate's chances.
5. If a job description is given, prioritize edits that improve the match with it, but never fabricate experience.

**Resume:**
-----
%s
-----

**Job Description (optional):**
-----
%s
-----`

// noJobDescription fills the job description slot when none was given
const noJobDescription = "(none provided)"

// resolvePrompt selects a prompt in priority order: loaded from a file,
// set inline in configuration, built-in default
func resolvePrompt(loadedFromFile, fromConfig, fromDefault string) string {
	if loadedFromFile != "" {
		return loadedFromFile
	}
	if fromConfig != "" {
		return fromConfig
	}
	return fromDefault
}
