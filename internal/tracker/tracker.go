// Package tracker classifies how launches changed between two polls.
package tracker

import (
	"slices"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// ScrubThreshold is how far a launch must slip before it counts as a scrub.
const ScrubThreshold = 5 * time.Minute

// Changes is the result of comparing a fresh fetch with the previous snapshot.
type Changes struct {
	// Records is the fresh set, sorted by NET with ordinals assigned.
	Records  []models.LaunchRecord
	Scrubs   []models.ScrubEvent
	Outcomes []models.OutcomeEvent
}

// Empty reports whether no transitions were detected.
func (c Changes) Empty() bool {
	return len(c.Scrubs) == 0 && len(c.Outcomes) == 0
}

// Order returns a copy of records sorted by NET with ordinals 0..N-1.
// Ties keep feed order.
func Order(records []models.LaunchRecord) []models.LaunchRecord {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b models.LaunchRecord) int {
		return a.NET.Compare(b.NET)
	})
	for i := range out {
		out[i].Ordinal = i
	}
	return out
}

// Detect compares fetched against previous, matching records by SourceID.
// Scrub and outcome are independent; one record may produce both. Records
// missing from fetched produce nothing.
func Detect(previous, fetched []models.LaunchRecord) Changes {
	ch := Changes{Records: Order(fetched)}
	if len(previous) == 0 {
		return ch
	}

	old := make(map[string]models.LaunchRecord, len(previous))
	for _, r := range previous {
		old[r.SourceID] = r
	}

	for _, r := range ch.Records {
		prev, ok := old[r.SourceID]
		if !ok {
			continue
		}
		if r.NET.After(prev.NET.Add(ScrubThreshold)) {
			ch.Scrubs = append(ch.Scrubs, models.ScrubEvent{Old: prev, New: r})
		}
		if r.Status.IsFinished() && prev.Status.IsPending() {
			ch.Outcomes = append(ch.Outcomes, models.OutcomeEvent{Launch: r, Previous: prev.Status})
		}
	}
	return ch
}
