package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/iudanet/zfswitness/internal/models"
	"github.com/iudanet/zfswitness/pkg/api"
)

// ActionTypeSyncSnapshot is the only action type the planner emits.
const ActionTypeSyncSnapshot = "sync_snapshot"

// diagnostics накапливает причины отбрасывания кандидатов; отдается
// вызывающему только по явному запросу.
type diagnostics struct {
	entries []string
}

func (d *diagnostics) addf(format string, args ...any) {
	if d == nil {
		return
	}
	d.entries = append(d.entries, fmt.Sprintf(format, args...))
}

// planInput все, что нужно для планирования одного mismatch.
// cmp построен только из boundary снапшотов.
type planInput struct {
	mismatch        api.Mismatch
	cmp             *Comparison
	nodes           map[string]*models.Node
	now             time.Time
	minGapHours     float64
	incrementalOnly bool
}

// plannedAction — ReplicationAction плюс данные, нужные консолидации
type plannedAction struct {
	action        api.ReplicationAction
	startingTS    time.Time // нулевое для full send
	endingTS      time.Time
	source        *models.Node
	target        *models.Node
	targetPool    string
	targetDataset string
}

// planMismatch resolves one mismatch into a fully specified replication
// action, or rejects it with a diagnostic. Rejection is silent towards the
// caller: a nil plan just does not contribute to the consolidated output.
//
// Порядок проверок фиксирован: guardrail, ending, base, диапазон, transport.
func planMismatch(in planInput, diag *diagnostics) *plannedAction {
	m := in.mismatch

	source := in.nodes[m.SourceNodeIDs[0]]
	target := in.nodes[m.TargetNodeID]
	if source == nil || target == nil {
		diag.addf("dataset %s target %s: node record missing", m.Dataset, m.TargetNodeID)
		return nil
	}

	sourceSnaps := nodeRecords(in.cmp, source.ID)
	targetSnaps := nodeRecords(in.cmp, target.ID)

	if !IsBehindThreshold(sourceSnaps, targetSnaps, in.minGapHours, in.now) {
		diag.addf("dataset %s target %s: not behind threshold (%.0fh)",
			m.Dataset, target.ID, in.minGapHours)
		return nil
	}

	// Кандидаты на доставку: boundary снапшоты источника, которых нет
	// на таргете
	candidates := make([]*models.Snapshot, 0, len(sourceSnaps))
	for _, s := range sourceSnaps {
		if !in.cmp.HasName(target.ID, s.ShortName()) {
			candidates = append(candidates, s)
		}
	}

	ending := LatestEligibleBefore(candidates, in.now, in.minGapHours)
	if ending == "" {
		diag.addf("dataset %s target %s: no ending snapshot old enough (%.0fh)",
			m.Dataset, target.ID, in.minGapHours)
		return nil
	}
	endingRecord := in.cmp.Record(source.ID, ending)

	starting, startingRecord := incrementalBase(in.cmp, source.ID, target.ID)
	if starting == "" && in.incrementalOnly {
		diag.addf("dataset %s target %s: no common incremental base", m.Dataset, target.ID)
		return nil
	}

	if starting != "" {
		if starting == ending {
			diag.addf("dataset %s target %s: starting snapshot equals ending %s",
				m.Dataset, target.ID, ending)
			return nil
		}
		if !startingRecord.Timestamp.UTC().Before(endingRecord.Timestamp.UTC()) {
			diag.addf("dataset %s target %s: starting %s not older than ending %s",
				m.Dataset, target.ID, starting, ending)
			return nil
		}

		timestamps := map[string]time.Time{
			starting: startingRecord.Timestamp,
			ending:   endingRecord.Timestamp,
		}
		if !HasSufficientGap(starting, ending, timestamps, in.minGapHours) {
			diag.addf("dataset %s target %s: insufficient snapshot gap %s..%s (min %.0fh)",
				m.Dataset, target.ID, starting, ending, in.minGapHours)
			return nil
		}
	}

	if !target.Addressable() {
		diag.addf("dataset %s target %s: target has no transport hostname", m.Dataset, target.ID)
		return nil
	}

	targetPool := poolOf(targetSnaps, endingRecord.Pool)

	command, err := GenerateSyncCommand(CommandParams{
		SourcePool:              endingRecord.Pool,
		Dataset:                 m.Dataset,
		StartingSnapshot:        starting,
		EndingSnapshot:          ending,
		TargetTransportHostname: target.TransportHostname,
		TargetTransportUser:     target.TransportUser,
		TargetTransportPort:     target.TransportPort,
		TargetPool:              targetPool,
		TargetDataset:           m.Dataset,
	})
	if err != nil {
		diag.addf("dataset %s target %s: %v", m.Dataset, target.ID, err)
		return nil
	}

	plan := &plannedAction{
		action: api.ReplicationAction{
			ActionType:       ActionTypeSyncSnapshot,
			GroupID:          m.GroupID,
			Dataset:          m.Dataset,
			SourceNodeID:     source.ID,
			TargetNodeID:     target.ID,
			SourcePool:       endingRecord.Pool,
			TargetPool:       targetPool,
			SnapshotName:     ending,
			SnapshotID:       endingRecord.ID,
			StartingSnapshot: starting,
			EstimatedSize:    endingRecord.Size,
			Priority:         m.Priority,
			Command:          command,
		},
		endingTS:      endingRecord.Timestamp,
		source:        source,
		target:        target,
		targetPool:    targetPool,
		targetDataset: m.Dataset,
	}
	if startingRecord != nil {
		plan.startingTS = startingRecord.Timestamp
	}
	return plan
}

// incrementalBase picks the most recent boundary snapshot present on both
// nodes. Возвращает пустое имя, если общей базы нет.
func incrementalBase(cmp *Comparison, sourceID, targetID string) (string, *models.Snapshot) {
	var base *models.Snapshot
	for _, name := range cmp.Names(targetID) {
		record := cmp.Record(sourceID, name)
		if record == nil {
			continue
		}
		if base == nil || record.Timestamp.After(base.Timestamp) {
			base = record
		}
	}
	if base == nil {
		return "", nil
	}
	return base.ShortName(), base
}

// nodeRecords materializes the node's records held in a comparison.
func nodeRecords(cmp *Comparison, nodeID string) []*models.Snapshot {
	names := cmp.Names(nodeID)
	out := make([]*models.Snapshot, 0, len(names))
	for _, name := range names {
		out = append(out, cmp.Record(nodeID, name))
	}
	return out
}

// poolOf returns the pool the node's records live in, or fallback when the
// node has no records for the dataset yet (first full send).
func poolOf(snaps []*models.Snapshot, fallback string) string {
	if len(snaps) > 0 {
		return snaps[0].Pool
	}
	return fallback
}

// consolidate collapses per-snapshot plans into one instruction per
// (dataset, target): самый поздний ending из всех планов, самый ранний
// непустой starting. Так один send покрывает все накопившиеся пропуски.
func consolidate(plans []*plannedAction, diag *diagnostics) []api.DatasetSyncInstruction {
	type key struct {
		dataset string
		target  string
	}

	merged := make(map[key]*plannedAction)
	earliestStart := make(map[key]*plannedAction)
	for _, plan := range plans {
		k := key{dataset: plan.action.Dataset, target: plan.action.TargetNodeID}

		if best := merged[k]; best == nil || plan.endingTS.After(best.endingTS) {
			merged[k] = plan
		}
		if plan.action.StartingSnapshot != "" {
			if best := earliestStart[k]; best == nil || plan.startingTS.Before(best.startingTS) {
				earliestStart[k] = plan
			}
		}
	}

	keys := make([]key, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].dataset != keys[j].dataset {
			return keys[i].dataset < keys[j].dataset
		}
		return keys[i].target < keys[j].target
	})

	instructions := make([]api.DatasetSyncInstruction, 0, len(keys))
	for _, k := range keys {
		plan := merged[k]
		starting := plan.action.StartingSnapshot
		if es := earliestStart[k]; es != nil {
			starting = es.action.StartingSnapshot
		}

		command := plan.action.Command
		if starting != plan.action.StartingSnapshot {
			// Диапазон поменялся после слияния — перегенерируем команду
			regenerated, err := GenerateSyncCommand(CommandParams{
				SourcePool:              plan.action.SourcePool,
				Dataset:                 plan.action.Dataset,
				StartingSnapshot:        starting,
				EndingSnapshot:          plan.action.SnapshotName,
				TargetTransportHostname: plan.target.TransportHostname,
				TargetTransportUser:     plan.target.TransportUser,
				TargetTransportPort:     plan.target.TransportPort,
				TargetPool:              plan.targetPool,
				TargetDataset:           plan.targetDataset,
			})
			if err != nil {
				diag.addf("dataset %s target %s: %v", k.dataset, k.target, err)
				continue
			}
			command = regenerated
		}

		instructions = append(instructions, api.DatasetSyncInstruction{
			GroupID:                 plan.action.GroupID,
			Dataset:                 plan.action.Dataset,
			SourceNodeID:            plan.action.SourceNodeID,
			TargetNodeID:            plan.action.TargetNodeID,
			SourcePool:              plan.action.SourcePool,
			TargetPool:              plan.targetPool,
			TargetDataset:           plan.targetDataset,
			StartingSnapshot:        starting,
			EndingSnapshot:          plan.action.SnapshotName,
			SourceTransportHostname: plan.source.TransportHostname,
			TargetTransportHostname: plan.target.TransportHostname,
			EstimatedSize:           plan.action.EstimatedSize,
			Command:                 command,
		})
	}

	return instructions
}
