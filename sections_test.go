package main

import (
	"strings"
	"testing"
)

func TestUpsertSectionAppendsWhenAbsent(t *testing.T) {
	body := "Discovered via feed.\n\nSome details."
	got := UpsertSection(body, HeadingAssessment, "Looks like phishing.")

	if !strings.Contains(got, HeadingAssessment+"\n\nLooks like phishing.") {
		t.Fatalf("section not appended:\n%s", got)
	}
	if !strings.HasPrefix(got, "Discovered via feed.") {
		t.Fatalf("original body must be preserved:\n%s", got)
	}
}

func TestUpsertSectionReplacesInPlace(t *testing.T) {
	body := "intro\n\n## AI Assessment\n\nold content\n\n## Copilot Assignment\n\nkeep me\n"
	got := UpsertSection(body, HeadingAssessment, "new content")

	if strings.Contains(got, "old content") {
		t.Fatalf("old content should be replaced:\n%s", got)
	}
	if !strings.Contains(got, "new content") {
		t.Fatalf("new content missing:\n%s", got)
	}
	if !strings.Contains(got, "## Copilot Assignment\n\nkeep me") {
		t.Fatalf("following section must be untouched:\n%s", got)
	}
	if !strings.HasPrefix(got, "intro") {
		t.Fatalf("leading prose must be untouched:\n%s", got)
	}
}

func TestUpsertSectionIsBoundedByNextHeading(t *testing.T) {
	body := "## AI Assessment\n\nfirst\n\n### sub-note inside\n\nmore\n\n## Specialist Guidance\n\nguide\n"
	got := UpsertSection(body, HeadingAssessment, "replaced")

	if strings.Contains(got, "sub-note inside") {
		t.Fatalf("sub-headings belong to the section and should be replaced with it:\n%s", got)
	}
	if !strings.Contains(got, "## Specialist Guidance\n\nguide") {
		t.Fatalf("next top-level section must survive:\n%s", got)
	}
}

func TestUpsertSectionIdempotent(t *testing.T) {
	bodies := []string{
		"",
		"plain prose only",
		"intro\n\n## AI Assessment\n\nstale\n",
		"## Specialist Guidance\nno blank lines\n## AI Assessment\nstale",
	}
	for _, body := range bodies {
		once := UpsertSection(body, HeadingAssessment, "stable content\nwith two lines")
		twice := UpsertSection(once, HeadingAssessment, "stable content\nwith two lines")
		if once != twice {
			t.Fatalf("upsert not idempotent for body %q:\nonce:  %q\ntwice: %q", body, once, twice)
		}
	}
}

func TestUpsertSectionNeutralizesEmbeddedHeadings(t *testing.T) {
	content := "summary line\n## Injected Heading\ntrailing line"
	body := UpsertSection("intro", HeadingAssessment, content)

	if strings.Contains(body, "\n## Injected Heading") {
		t.Fatalf("embedded heading must not survive as a top-level heading:\n%s", body)
	}
	if !strings.Contains(body, `\## Injected Heading`) {
		t.Fatalf("embedded heading should be escaped, not dropped:\n%s", body)
	}

	for i := 0; i < 3; i++ {
		next := UpsertSection(body, HeadingAssessment, content)
		if next != body {
			t.Fatalf("upsert with embedded heading not stable on pass %d:\nwas: %q\nnow: %q", i+1, body, next)
		}
		body = next
	}

	headings := 0
	for _, s := range parseSections(body) {
		if s.Heading == HeadingAssessment {
			headings++
		}
	}
	if headings != 1 {
		t.Fatalf("want exactly one %q section, got %d:\n%s", HeadingAssessment, headings, body)
	}
}

func TestSectionContent(t *testing.T) {
	body := UpsertSection("intro", HeadingHandoff, "Due: tomorrow")
	content, ok := SectionContent(body, HeadingHandoff)
	if !ok {
		t.Fatal("section should be found")
	}
	if content != "Due: tomorrow" {
		t.Fatalf("SectionContent = %q", content)
	}
	if _, ok := SectionContent(body, HeadingGuidance); ok {
		t.Fatal("absent section must report ok=false")
	}
}

func TestParseRenderRoundTrip(t *testing.T) {
	bodies := []string{
		"",
		"no headings at all\n",
		"## A\ncontent\n## B\n\nmore\n\n",
		"lead\n## A\n\n### nested\ntail",
	}
	for _, body := range bodies {
		if got := renderSections(parseSections(body)); got != body {
			t.Fatalf("round trip changed body:\nin:  %q\nout: %q", body, got)
		}
	}
}
