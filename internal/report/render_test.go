package report_test

import (
	"strings"
	"testing"
	"time"

	"github.com/f-sync/followtrack/internal/relationships"
	"github.com/f-sync/followtrack/internal/report"
	"github.com/f-sync/followtrack/internal/snapshots"
)

func identities(handles ...string) []relationships.Identity {
	result := make([]relationships.Identity, 0, len(handles))
	for _, handle := range handles {
		result = append(result, relationships.Identity{Handle: handle, ProfileReference: "https://www.instagram.com/" + handle})
	}
	return result
}

func TestRenderPageStructure(t *testing.T) {
	const (
		snippetEmptyState         = "No snapshots yet."
		snippetTableOfContents    = "<a class=\"toc-link\" href=\"#overview\">Overview</a>"
		snippetEmbeddedCSSClass   = ".account-card-link:hover {"
		snippetFollowerCount      = "<p class=\"count\">3</p>"
		snippetFollowerGrowth     = "<p class=\"growth-up\">+1 from last snapshot</p>"
		snippetFollowingShrink    = "<p class=\"growth-down\">-1 from last snapshot</p>"
		snippetRatio              = "<p class=\"count\">3.00</p>"
		snippetNewFollowerCard    = "<a class=\"account-card-link\" href=\"https://www.instagram.com/dave\" rel=\"noopener noreferrer\" target=\"_blank\">@dave</a>"
		snippetFallbackProfileURL = "href=\"https://www.instagram.com/erin\""
		snippetNoneEntry          = "<p class=\"muted\">None</p>"
		snippetInsufficientData   = "Import at least two snapshots to see changes."
		snippetMissingList        = "snapshot is missing a relationship list"
		snippetGeneratedAt        = "Generated 2024-05-01 08:00 UTC"
	)

	firstTakenAt := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	secondTakenAt := time.Date(2024, time.April, 1, 10, 0, 0, 0, time.UTC)

	testCases := []struct {
		name               string
		pageData           report.PageData
		expectedSnippets   []string
		unexpectedSnippets []string
	}{
		{
			name:               "empty history",
			pageData:           report.PageData{},
			expectedSnippets:   []string{snippetEmptyState},
			unexpectedSnippets: []string{snippetTableOfContents, "Generated"},
		},
		{
			name: "single snapshot",
			pageData: report.PageData{
				History: snapshots.History{
					snapshots.NewSnapshot(firstTakenAt, identities("alice", "bob"), identities("alice")),
				},
			},
			expectedSnippets:   []string{snippetTableOfContents, snippetInsufficientData, snippetEmbeddedCSSClass},
			unexpectedSnippets: []string{"from last snapshot"},
		},
		{
			name: "two snapshots",
			pageData: report.PageData{
				History: snapshots.History{
					snapshots.NewSnapshot(firstTakenAt, identities("alice", "bob"), identities("alice", "carol")),
					snapshots.NewSnapshot(secondTakenAt, identities("alice", "bob", "dave"), identities("alice")),
				},
				GeneratedAt: time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC),
			},
			expectedSnippets: []string{
				snippetFollowerCount,
				snippetFollowerGrowth,
				snippetFollowingShrink,
				snippetRatio,
				snippetNewFollowerCard,
				snippetNoneEntry,
				snippetGeneratedAt,
			},
			unexpectedSnippets: []string{snippetInsufficientData, snippetEmptyState},
		},
		{
			name: "identity without profile reference",
			pageData: report.PageData{
				History: snapshots.History{
					snapshots.NewSnapshot(firstTakenAt, []relationships.Identity{{Handle: "erin"}}, identities("alice")),
				},
			},
			expectedSnippets: []string{snippetFallbackProfileURL},
		},
		{
			name: "missing relationship list",
			pageData: report.PageData{
				History: snapshots.History{
					{TakenAt: firstTakenAt, Followers: identities("alice")},
				},
			},
			expectedSnippets: []string{snippetMissingList},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			html, err := report.RenderPage(testCase.pageData)
			if err != nil {
				t.Fatalf("RenderPage returned error: %v", err)
			}
			if !strings.HasPrefix(html, "<!DOCTYPE html>") {
				t.Fatalf("expected the page to start with a doctype, got %.40q", html)
			}
			for _, expectedSnippet := range testCase.expectedSnippets {
				if !strings.Contains(html, expectedSnippet) {
					t.Fatalf("expected snippet %q in rendered page", expectedSnippet)
				}
			}
			for _, unexpectedSnippet := range testCase.unexpectedSnippets {
				if strings.Contains(html, unexpectedSnippet) {
					t.Fatalf("unexpected snippet %q in rendered page", unexpectedSnippet)
				}
			}
		})
	}
}
