package reconcile

import (
	"strings"
	"time"

	"github.com/iudanet/zfswitness/internal/models"
)

// MinSyncGapHours is the production guardrail threshold, in hours, used both
// for "behind" detection and for the minimum age/gap of a replication range.
// Started life as 24, raised to 72 after targets kept receiving snapshots
// that were still being rewritten by retention jobs. Overridable per
// Coordinator via Config.
const MinSyncGapHours = 72

// boundarySuffix — фиксированное суточное время среза в имени снапшота.
// Только такие снапшоты участвуют в сравнении и планировании.
const boundarySuffix = "-000000"

// IsBoundarySnapshot reports whether a normalized snapshot name is a daily
// boundary snapshot (ends with -000000).
func IsBoundarySnapshot(name string) bool {
	return strings.HasSuffix(name, boundarySuffix)
}

// boundarySnapshots filters records down to boundary snapshots.
func boundarySnapshots(snaps []*models.Snapshot) []*models.Snapshot {
	out := make([]*models.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if IsBoundarySnapshot(s.ShortName()) {
			out = append(out, s)
		}
	}
	return out
}

// latestSnapshot returns the newest record by timestamp, nil for empty input.
func latestSnapshot(snaps []*models.Snapshot) *models.Snapshot {
	var latest *models.Snapshot
	for _, s := range snaps {
		if latest == nil || s.Timestamp.After(latest.Timestamp) {
			latest = s
		}
	}
	return latest
}

// IsBehindThreshold reports whether the target's boundary inventory lags the
// source's by more than thresholdHours.
//
// Правила (в порядке проверки):
//   - у источника нет boundary снапшотов — не отстает;
//   - последний boundary таргета совпадает по имени с последним boundary
//     источника — не отстает;
//   - у таргета вообще нет boundary снапшотов — отстает, если возраст
//     последнего boundary источника превышает порог;
//   - иначе отстает, если sourceLatest − targetLatest строго больше порога.
//
// Вся арифметика в UTC.
func IsBehindThreshold(sourceSnaps, targetSnaps []*models.Snapshot, thresholdHours float64, now time.Time) bool {
	sourceBoundary := boundarySnapshots(sourceSnaps)
	latestSource := latestSnapshot(sourceBoundary)
	if latestSource == nil {
		return false
	}

	targetBoundary := boundarySnapshots(targetSnaps)
	for _, s := range targetBoundary {
		if s.ShortName() == latestSource.ShortName() {
			// Таргет уже держит последний boundary источника
			return false
		}
	}

	latestTarget := latestSnapshot(targetBoundary)
	if latestTarget == nil {
		age := now.UTC().Sub(latestSource.Timestamp.UTC()).Hours()
		return age > thresholdHours
	}

	diff := latestSource.Timestamp.UTC().Sub(latestTarget.Timestamp.UTC()).Hours()
	return diff > thresholdHours
}

// HasSufficientGap validates the minimum time gap between the starting and
// ending snapshots of a planned range. Пустой startingSnapshot означает full
// send — требования к зазору нет. Неизвестные timestamps — отказ.
func HasSufficientGap(startingSnapshot, endingSnapshot string, timestamps map[string]time.Time, minGapHours float64) bool {
	if startingSnapshot == "" {
		return true
	}

	start, okStart := timestamps[startingSnapshot]
	end, okEnd := timestamps[endingSnapshot]
	if !okStart || !okEnd {
		return false
	}

	return end.UTC().Sub(start.UTC()).Hours() >= minGapHours
}

// LatestEligibleBefore returns the normalized name of the newest snapshot
// that is at least minAgeHours older than now, or "" if none qualifies.
// Это вторая половина 72-часового правила: таргет всегда отстает от
// источника не более чем на окно guardrail-а, но и не получает снапшоты
// моложе окна.
func LatestEligibleBefore(snaps []*models.Snapshot, now time.Time, minAgeHours float64) string {
	cutoff := now.UTC().Add(-time.Duration(minAgeHours * float64(time.Hour)))

	var eligible *models.Snapshot
	for _, s := range snaps {
		ts := s.Timestamp.UTC()
		if ts.After(cutoff) {
			continue
		}
		if eligible == nil || ts.After(eligible.Timestamp.UTC()) {
			eligible = s
		}
	}

	if eligible == nil {
		return ""
	}
	return eligible.ShortName()
}
