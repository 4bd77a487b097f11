package generator

import (
	"strings"
	"testing"

	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/knowledge"
)

const sampleResult = `## Overview

This document explains how the retry backoff algorithm works across the payment service, covering both the client and the server side.

## Backoff strategy

The client waits an exponentially increasing delay between retries, with random jitter added to avoid thundering-herd effects.

It caps the delay at 30 seconds regardless of attempt count.

## Retry limits

After 5 failed attempts the client gives up and surfaces the error to the caller.
`

func TestQualityGateRejectsShortResults(t *testing.T) {
	_, err := Generate(Candidate{Result: "too short", Prompt: "investigate retries"})
	if err == nil {
		t.Fatal("expected short result to be rejected")
	}
	if k, _ := apperr.KindOf(err); k != apperr.KindInvalidRequest {
		t.Errorf("expected KindInvalidRequest, got %v", k)
	}
}

func TestQualityGateRejectsJunkPatterns(t *testing.T) {
	junk := "No results found for this query after searching the entire codebase thoroughly and exhaustively."
	_, err := Generate(Candidate{Result: junk, Prompt: "investigate retries"})
	if err == nil {
		t.Fatal("expected junk-pattern result to be rejected")
	}
}

func TestGenerateDerivesTitleFromDescription(t *testing.T) {
	input, err := Generate(Candidate{
		Result:      sampleResult,
		Description: "Retry backoff algorithm",
		Prompt:      "please research how retries work",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if input.Title != "Retry backoff algorithm" {
		t.Errorf("expected description to win as title, got %q", input.Title)
	}
}

func TestGenerateDerivesTitleFromPromptWhenDescriptionUnusable(t *testing.T) {
	input, err := Generate(Candidate{
		Result:      sampleResult,
		Description: "",
		Prompt:      "Please investigate how the payment retry backoff works.",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(strings.ToLower(input.Title), "please") {
		t.Errorf("expected politeness prefix stripped, got %q", input.Title)
	}
	if strings.HasSuffix(input.Title, ".") {
		t.Errorf("expected trailing period trimmed, got %q", input.Title)
	}
}

func TestGenerateExtractsMultipleSections(t *testing.T) {
	input, err := Generate(Candidate{Result: sampleResult, Description: "Retry backoff algorithm"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(input.Parts) < 2 {
		t.Fatalf("expected multiple sections, got %d: %+v", len(input.Parts), input.Parts)
	}
}

func TestGenerateDetectsAlgorithmType(t *testing.T) {
	input, err := Generate(Candidate{Result: sampleResult, Description: "Retry backoff algorithm"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if input.Type != "algorithm" {
		t.Errorf("expected type algorithm, got %q", input.Type)
	}
}

func TestExtractSectionsFoldsShortSections(t *testing.T) {
	body := `## A

Short.

## B

This is a long enough section to survive the fold threshold easily on its own merits.
`
	sections := extractSections(body)
	for _, s := range sections {
		full := s.Summary + s.Content
		if len(full) < 50 && s.Title != "Overview" {
			t.Errorf("expected short section %q to be folded, but it survived standalone", s.Title)
		}
	}
}

func TestExtractSectionsIgnoresHeadingsInsideFencedCode(t *testing.T) {
	body := "## Real heading\n\nSummary text here that is long enough to count as real content for this test.\n\n```\n## not a heading\nsome code\n```\n\nMore content after the fence.\n"
	sections := extractSections(body)
	for _, s := range sections {
		if s.Title == "not a heading" {
			t.Errorf("expected fenced-code heading to be ignored, got section: %+v", s)
		}
	}
}

func TestExtractSectionsPrefersLevel3WhenDominant(t *testing.T) {
	body := `### First

Enough content to not be folded away by the short-section rule here.

### Second

Enough content to not be folded away by the short-section rule here.

### Third

Enough content to not be folded away by the short-section rule here.
`
	sections := extractSections(body)
	if len(sections) != 3 {
		t.Fatalf("expected 3 level-3 sections chosen, got %d", len(sections))
	}
}

func TestCleanHeadingStripsMarkup(t *testing.T) {
	got := cleanHeading("**Bold** `code` and [a link](https://example.com)")
	if strings.Contains(got, "*") || strings.Contains(got, "`") || strings.Contains(got, "(") {
		t.Errorf("expected heading markup stripped, got %q", got)
	}
}

func TestGenerateAllStopsOnRequest(t *testing.T) {
	candidates := make([]Candidate, 5)
	for i := range candidates {
		candidates[i] = Candidate{Result: sampleResult, Description: "Valid title here"}
	}
	calls := 0
	result := GenerateAll(candidates, func(in knowledge.CreateInput) error {
		calls++
		if calls == 2 {
			RequestStop()
		}
		return nil
	})
	if !result.Stopped {
		t.Error("expected batch to report stopped once RequestStop was called mid-run")
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 candidates processed before stop took effect, got %d", calls)
	}
}

func TestGenerateAllCountsGeneratedAndErrors(t *testing.T) {
	candidates := []Candidate{
		{Result: sampleResult, Description: "Valid title one"},
		{Result: "too short", Description: "x"},
		{Result: sampleResult, Description: "Valid title two"},
	}
	generated := 0
	result := GenerateAll(candidates, func(in knowledge.CreateInput) error {
		generated++
		return nil
	})
	if result.Generated != 2 {
		t.Errorf("expected 2 generated, got %d", result.Generated)
	}
	if result.Errors != 1 {
		t.Errorf("expected 1 error, got %d", result.Errors)
	}
	if generated != 2 {
		t.Errorf("expected sink called twice, got %d", generated)
	}
}
