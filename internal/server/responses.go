package server

import (
	"time"

	"github.com/f-sync/followtrack/internal/backup"
	"github.com/f-sync/followtrack/internal/reconcile"
	"github.com/f-sync/followtrack/internal/relationships"
	"github.com/f-sync/followtrack/internal/snapshots"
)

type errorResponse struct {
	Error string `json:"error"`
	File  string `json:"file,omitempty"`
	Index *int   `json:"index,omitempty"`
}

type snapshotSummary struct {
	TakenAt        string `json:"takenAt"`
	FollowerCount  int    `json:"followers"`
	FollowingCount int    `json:"following"`
}

type historyResponse struct {
	Snapshots []snapshotSummary `json:"snapshots"`
	Warning   string            `json:"warning,omitempty"`
}

type importResponse struct {
	Outcome   string            `json:"outcome"`
	Snapshot  snapshotSummary   `json:"snapshot"`
	Snapshots []snapshotSummary `json:"snapshots"`
	Warning   string            `json:"warning,omitempty"`
}

type deltaPayload struct {
	Added   []relationships.Identity `json:"added"`
	Removed []relationships.Identity `json:"removed"`
	Error   string                   `json:"error,omitempty"`
}

type changesResponse struct {
	Ready     bool         `json:"ready"`
	From      string       `json:"from,omitempty"`
	To        string       `json:"to,omitempty"`
	Followers deltaPayload `json:"followers"`
	Following deltaPayload `json:"following"`
}

type axisPayload struct {
	Accounts []relationships.Identity `json:"accounts"`
	Error    string                   `json:"error,omitempty"`
}

type analysisResponse struct {
	Ready            bool        `json:"ready"`
	TakenAt          string      `json:"takenAt,omitempty"`
	NotFollowingBack axisPayload `json:"notFollowingBack"`
	NotFollowedBack  axisPayload `json:"notFollowedBack"`
}

type growthPayload struct {
	Difference int  `json:"difference"`
	IsPositive bool `json:"isPositive"`
}

type overviewResponse struct {
	Ready            bool              `json:"ready"`
	Trend            []snapshotSummary `json:"trend"`
	Latest           snapshotSummary   `json:"latest"`
	HasPrevious      bool              `json:"hasPrevious"`
	FollowerGrowth   growthPayload     `json:"followerGrowth"`
	FollowingGrowth  growthPayload     `json:"followingGrowth"`
	NotFollowingBack int               `json:"notFollowingBack"`
	NotFollowedBack  int               `json:"notFollowedBack"`
}

func formatTakenAt(takenAt time.Time) string {
	return takenAt.UTC().Format(backup.TakenAtLayout)
}

func summarizeSnapshot(snapshot snapshots.Snapshot) snapshotSummary {
	return snapshotSummary{
		TakenAt:        formatTakenAt(snapshot.TakenAt),
		FollowerCount:  len(snapshot.Followers),
		FollowingCount: len(snapshot.Following),
	}
}

func summarizeHistory(history snapshots.History) []snapshotSummary {
	summaries := make([]snapshotSummary, 0, len(history))
	for _, snapshot := range history {
		summaries = append(summaries, summarizeSnapshot(snapshot))
	}
	return summaries
}

func newDeltaPayload(result reconcile.DeltaResult) deltaPayload {
	if result.Err != nil {
		return deltaPayload{Added: []relationships.Identity{}, Removed: []relationships.Identity{}, Error: result.Err.Error()}
	}
	return deltaPayload{Added: result.Delta.Added, Removed: result.Delta.Removed}
}

func newChangesResponse(changes reconcile.Changes) changesResponse {
	return changesResponse{
		Ready:     true,
		From:      formatTakenAt(changes.PreviousTakenAt),
		To:        formatTakenAt(changes.LatestTakenAt),
		Followers: newDeltaPayload(changes.Followers),
		Following: newDeltaPayload(changes.Following),
	}
}

func newAxisPayload(result reconcile.AxisResult) axisPayload {
	if result.Err != nil {
		return axisPayload{Accounts: []relationships.Identity{}, Error: result.Err.Error()}
	}
	return axisPayload{Accounts: result.Identities}
}

func newAnalysisResponse(analysis reconcile.Analysis) analysisResponse {
	return analysisResponse{
		Ready:            true,
		TakenAt:          formatTakenAt(analysis.TakenAt),
		NotFollowingBack: newAxisPayload(analysis.NotFollowingBack),
		NotFollowedBack:  newAxisPayload(analysis.NotFollowedBack),
	}
}

func newOverviewResponse(overview reconcile.HistoryOverview) overviewResponse {
	trend := make([]snapshotSummary, 0, len(overview.Trend))
	for _, point := range overview.Trend {
		trend = append(trend, trendSummary(point))
	}
	return overviewResponse{
		Ready:            true,
		Trend:            trend,
		Latest:           trendSummary(overview.Latest),
		HasPrevious:      overview.HasPrevious,
		FollowerGrowth:   growthPayload(overview.FollowerGrowth),
		FollowingGrowth:  growthPayload(overview.FollowingGrowth),
		NotFollowingBack: overview.NotFollowingBackCount,
		NotFollowedBack:  overview.NotFollowedBackCount,
	}
}

func trendSummary(point reconcile.TrendPoint) snapshotSummary {
	return snapshotSummary{
		TakenAt:        formatTakenAt(point.TakenAt),
		FollowerCount:  point.FollowerCount,
		FollowingCount: point.FollowingCount,
	}
}

func warningText(warning error) string {
	if warning == nil {
		return ""
	}
	return warning.Error()
}
