package reconcile

import "github.com/f-sync/followtrack/internal/snapshots"

// Overview summarizes history: counts per snapshot, the latest totals with their growth
// against the previous snapshot, and the latest non-reciprocity counts. It reports false
// for an empty history.
func Overview(history snapshots.History) (HistoryOverview, bool) {
	latest, found := history.Latest()
	if !found {
		return HistoryOverview{}, false
	}

	trend := make([]TrendPoint, 0, len(history))
	for _, snapshot := range history {
		trend = append(trend, trendPoint(snapshot))
	}

	nonReciprocity := NonReciprocal(latest)
	overview := HistoryOverview{
		Trend:                 trend,
		Latest:                trendPoint(latest),
		FollowerGrowth:        Growth{IsPositive: true},
		FollowingGrowth:       Growth{IsPositive: true},
		NotFollowingBackCount: len(nonReciprocity.NotFollowingBack),
		NotFollowedBackCount:  len(nonReciprocity.NotFollowedBack),
	}
	if len(history) > 1 {
		previous := trendPoint(history[len(history)-2])
		overview.HasPrevious = true
		overview.FollowerGrowth = growth(overview.Latest.FollowerCount, previous.FollowerCount)
		overview.FollowingGrowth = growth(overview.Latest.FollowingCount, previous.FollowingCount)
	}
	return overview, true
}

func trendPoint(snapshot snapshots.Snapshot) TrendPoint {
	return TrendPoint{
		TakenAt:        snapshot.TakenAt,
		FollowerCount:  len(snapshot.Followers),
		FollowingCount: len(snapshot.Following),
	}
}

// growth is zero when the previous count is zero.
func growth(current int, previous int) Growth {
	if previous == 0 {
		return Growth{IsPositive: true}
	}
	difference := current - previous
	return Growth{Difference: difference, IsPositive: difference >= 0}
}
