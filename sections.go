package main

import "strings"

// The handoff builder owns exactly three top-level headings in an item's
// body. Each is independently upsertable.
const (
	HeadingAssessment = "## AI Assessment"
	HeadingGuidance   = "## Specialist Guidance"
	HeadingHandoff    = "## Copilot Assignment"
)

// docSection is one "## heading" block: the heading line plus every line up
// to the next top-level heading or end of body. The leading section before
// the first heading keeps an empty Heading.
type docSection struct {
	Heading string
	Lines   []string
}

func isTopHeading(line string) bool {
	return strings.HasPrefix(line, "## ") && !strings.HasPrefix(line, "### ")
}

// parseSections splits a body into an ordered section list. renderSections
// over an unmodified parse reproduces the input byte for byte, which is what
// makes the upsert idempotent.
func parseSections(body string) []docSection {
	var sections []docSection
	cur := docSection{}
	active := false
	for _, line := range strings.Split(body, "\n") {
		if isTopHeading(line) {
			if active {
				sections = append(sections, cur)
			}
			cur = docSection{Heading: line}
			active = true
			continue
		}
		cur.Lines = append(cur.Lines, line)
		active = true
	}
	if active {
		sections = append(sections, cur)
	}
	return sections
}

func renderSections(sections []docSection) string {
	var parts []string
	for _, s := range sections {
		if s.Heading != "" {
			parts = append(parts, s.Heading)
		}
		parts = append(parts, s.Lines...)
	}
	return strings.Join(parts, "\n")
}

// neutralizeHeadings escapes content lines that would parse as new
// top-level headings, so upserted text (classifier summaries, rationale)
// can never split its own section and duplicate on the next pass.
func neutralizeHeadings(content string) string {
	lines := strings.Split(content, "\n")
	changed := false
	for i, l := range lines {
		if isTopHeading(l) {
			lines[i] = `\` + l
			changed = true
		}
	}
	if !changed {
		return content
	}
	return strings.Join(lines, "\n")
}

// UpsertSection replaces the named section's content in place, or appends
// the section if the heading is absent. content is the block below the
// heading, without the heading line. Running the same upsert twice yields
// byte-identical output.
func UpsertSection(body, heading, content string) string {
	content = neutralizeHeadings(strings.TrimRight(content, "\n"))
	block := append([]string{""}, strings.Split(content, "\n")...)
	block = append(block, "")

	sections := parseSections(body)
	for i, s := range sections {
		if s.Heading == heading {
			sections[i].Lines = block
			return renderSections(sections)
		}
	}

	out := strings.TrimRight(body, "\n")
	if out != "" {
		out += "\n\n"
	}
	return out + heading + "\n\n" + content + "\n"
}

// SectionContent returns the body of the named section, or false if the
// heading is absent.
func SectionContent(body, heading string) (string, bool) {
	for _, s := range parseSections(body) {
		if s.Heading == heading {
			return strings.Trim(strings.Join(s.Lines, "\n"), "\n"), true
		}
	}
	return "", false
}
