// Package report renders the snapshot history as a standalone HTML dashboard.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/f-sync/followtrack/internal/reconcile"
	"github.com/f-sync/followtrack/internal/relationships"
	"github.com/f-sync/followtrack/internal/snapshots"
)

const (
	pageTitleText                = "Follower Snapshot Report"
	errMessageTemplateParse      = "template parse"
	errMessageTemplateExecute    = "template execute"
	notFollowingBackSectionTitle = "Not following you back"
	notFollowedBackSectionTitle  = "You don't follow back"
)

// PageData captures the history state rendered by RenderPage.
type PageData struct {
	History     snapshots.History
	GeneratedAt time.Time
}

// RenderPage assembles the HTML report from the embedded template and stylesheet.
func RenderPage(pageData PageData) (string, error) {
	cssText, err := embeddedText(embeddedReportCSSPath)
	if err != nil {
		return "", err
	}
	tmpl, err := parseTemplates(embeddedFS, templateReportFile)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errMessageTemplateParse, err)
	}
	var buffer bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buffer, templateReportName, newPageViewModel(pageData, cssText)); err != nil {
		return "", fmt.Errorf("%s: %w", errMessageTemplateExecute, err)
	}
	return buffer.String(), nil
}

type pageViewModel struct {
	Title         string
	GeneratedAt   time.Time
	HasHistory    bool
	SnapshotCount int

	Latest          reconcile.TrendPoint
	HasPrevious     bool
	FollowerGrowth  growthViewModel
	FollowingGrowth growthViewModel
	Ratio           string
	Trend           []reconcile.TrendPoint

	HasChanges bool
	Changes    changesViewModel

	Analysis []axisViewModel

	CSS template.CSS
}

type growthViewModel struct {
	Difference int
	ClassName  string
}

type changesViewModel struct {
	PreviousTakenAt time.Time
	LatestTakenAt   time.Time
	Directions      []directionChangesViewModel
}

type directionChangesViewModel struct {
	Title   string
	Failure string
	Added   []accountCardViewModel
	Removed []accountCardViewModel
}

type axisViewModel struct {
	Title    string
	Failure  string
	Accounts []accountCardViewModel
}

type accountCardViewModel struct {
	Handle     string
	ProfileURL string
}

func newPageViewModel(pageData PageData, cssText string) pageViewModel {
	viewModel := pageViewModel{
		Title:         pageTitleText,
		GeneratedAt:   pageData.GeneratedAt,
		SnapshotCount: len(pageData.History),
		CSS:           template.CSS(cssText),
	}

	overview, ready := reconcile.Overview(pageData.History)
	if !ready {
		return viewModel
	}
	viewModel.HasHistory = true
	viewModel.Latest = overview.Latest
	viewModel.HasPrevious = overview.HasPrevious
	viewModel.FollowerGrowth = newGrowthViewModel(overview.FollowerGrowth)
	viewModel.FollowingGrowth = newGrowthViewModel(overview.FollowingGrowth)
	viewModel.Ratio = followRatio(overview.Latest)
	viewModel.Trend = overview.Trend

	if changes, found := reconcile.LatestChanges(pageData.History); found {
		viewModel.HasChanges = true
		viewModel.Changes = newChangesViewModel(changes)
	}

	if latest, found := pageData.History.Latest(); found {
		analysis := reconcile.Analyze(latest)
		viewModel.Analysis = []axisViewModel{
			newAxisViewModel(notFollowingBackSectionTitle, analysis.NotFollowingBack),
			newAxisViewModel(notFollowedBackSectionTitle, analysis.NotFollowedBack),
		}
	}
	return viewModel
}

func newGrowthViewModel(growth reconcile.Growth) growthViewModel {
	className := growthPositiveClassName
	if !growth.IsPositive {
		className = growthNegativeClassName
	}
	return growthViewModel{Difference: growth.Difference, ClassName: className}
}

func newChangesViewModel(changes reconcile.Changes) changesViewModel {
	viewModel := changesViewModel{PreviousTakenAt: changes.PreviousTakenAt, LatestTakenAt: changes.LatestTakenAt}
	for _, direction := range relationships.Directions() {
		result := changes.Result(direction)
		directionViewModel := directionChangesViewModel{Title: titleCase(direction.String())}
		if result.Err != nil {
			directionViewModel.Failure = result.Err.Error()
		} else {
			directionViewModel.Added = newAccountCards(result.Delta.Added)
			directionViewModel.Removed = newAccountCards(result.Delta.Removed)
		}
		viewModel.Directions = append(viewModel.Directions, directionViewModel)
	}
	return viewModel
}

func newAxisViewModel(title string, result reconcile.AxisResult) axisViewModel {
	if result.Err != nil {
		return axisViewModel{Title: title, Failure: result.Err.Error()}
	}
	return axisViewModel{Title: title, Accounts: newAccountCards(result.Identities)}
}

func newAccountCards(identities []relationships.Identity) []accountCardViewModel {
	if len(identities) == 0 {
		return nil
	}
	cards := make([]accountCardViewModel, 0, len(identities))
	for _, identity := range identities {
		cards = append(cards, accountCardViewModel{
			Handle:     resolveHandleLabel(identity.Handle),
			ProfileURL: profileURL(identity),
		})
	}
	return cards
}

// profileURL prefers the reference carried by the export and falls back to the handle.
func profileURL(identity relationships.Identity) string {
	if reference := strings.TrimSpace(identity.ProfileReference); reference != "" {
		return reference
	}
	trimmedHandle := strings.TrimSpace(identity.Handle)
	if trimmedHandle == "" {
		return ""
	}
	return instagramProfileBaseURL + trimmedHandle
}

func followRatio(point reconcile.TrendPoint) string {
	if point.FollowingCount == 0 {
		return ratioUnavailableText
	}
	return fmt.Sprintf(ratioFormat, float64(point.FollowerCount)/float64(point.FollowingCount))
}

func titleCase(text string) string {
	if text == "" {
		return text
	}
	return strings.ToUpper(text[:1]) + text[1:]
}
