package dimensions

import (
	"context"
	"sort"
	"time"

	"casecontext-backend/internal/casestore"
	"casecontext-backend/internal/domain/contextrec"
)

// WhenAnalyzer assembles the WHEN dimension from the case store: the
// filing date, the event timeline, the ordered deadline list, and an
// urgency score derived from them.
type WhenAnalyzer struct {
	store casestore.Store
	now   func() time.Time
}

// NewWhenAnalyzer creates the WHEN analyzer.
func NewWhenAnalyzer(store casestore.Store) *WhenAnalyzer {
	return &WhenAnalyzer{store: store, now: time.Now}
}

func (a *WhenAnalyzer) Name() contextrec.DimensionName { return contextrec.DimensionWhen }

// Analyze reads the timeline and scores completeness: filing date (30%),
// timeline events scaled to ten (30%), deadlines scaled to five (40%).
func (a *WhenAnalyzer) Analyze(ctx context.Context, key contextrec.CaseKey) (*contextrec.DimensionData, error) {
	md, err := a.store.GetCaseMetadata(ctx, key)
	if err != nil {
		return nil, err
	}
	events, err := a.store.ListEvents(ctx, key, casestore.EventFilter{})
	if err != nil {
		return nil, err
	}

	now := a.now()
	deadlines := collectDeadlines(events)

	data := map[string]any{
		"timeline":      eventDocs(events),
		"deadlines":     deadlineDocs(deadlines),
		"urgency_score": urgencyScore(now, md.FilingDate, deadlines),
	}
	if md.FilingDate != nil {
		data["filing_date"] = md.FilingDate.Format(time.RFC3339)
	}
	if next := nextDeadline(now, deadlines); next != nil {
		data["next_deadline"] = next.Format(time.RFC3339)
	}
	data["overdue_count"] = overdueCount(now, deadlines)

	completeness := boolWeight(md.FilingDate != nil, 0.30) +
		scaled(len(events), 10)*0.30 +
		scaled(len(deadlines), 5)*0.40

	return finish(data, completeness, 1.0, len(events)+len(deadlines)), nil
}

// collectDeadlines filters deadline events and orders them ascending by
// due date.
func collectDeadlines(events []casestore.Event) []time.Time {
	var due []time.Time
	for _, e := range events {
		if e.Kind == casestore.EventDeadline && e.Due != nil {
			due = append(due, *e.Due)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Before(due[j]) })
	return due
}

func nextDeadline(now time.Time, deadlines []time.Time) *time.Time {
	for _, d := range deadlines {
		if d.After(now) {
			next := d
			return &next
		}
	}
	return nil
}

func overdueCount(now time.Time, deadlines []time.Time) int {
	count := 0
	for _, d := range deadlines {
		if !d.After(now) {
			count++
		}
	}
	return count
}

// urgencyScore combines proximity of the next deadline, overdue pressure,
// case age, and near-term deadline density into a score bounded to [0,1].
func urgencyScore(now time.Time, filed *time.Time, deadlines []time.Time) float64 {
	score := 0.0

	if next := nextDeadline(now, deadlines); next != nil {
		days := next.Sub(now).Hours() / 24
		proximity := 1 - days/30
		if proximity < 0 {
			proximity = 0
		}
		score += proximity * 0.40
	}

	score += scaled(overdueCount(now, deadlines), 3) * 0.30

	if filed != nil {
		ageDays := int(now.Sub(*filed).Hours() / 24)
		score += scaled(ageDays, 365) * 0.10
	}

	within30 := 0
	horizon := now.Add(30 * 24 * time.Hour)
	for _, d := range deadlines {
		if d.After(now) && d.Before(horizon) {
			within30++
		}
	}
	score += scaled(within30, 5) * 0.20

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func eventDocs(events []casestore.Event) []map[string]any {
	docs := make([]map[string]any, 0, len(events))
	for _, e := range events {
		doc := map[string]any{
			"id":          e.ID,
			"kind":        string(e.Kind),
			"description": e.Description,
			"occurred_at": e.OccurredAt.Format(time.RFC3339),
		}
		if e.Due != nil {
			doc["due"] = e.Due.Format(time.RFC3339)
		}
		docs = append(docs, doc)
	}
	return docs
}

func deadlineDocs(deadlines []time.Time) []string {
	docs := make([]string, 0, len(deadlines))
	for _, d := range deadlines {
		docs = append(docs, d.Format(time.RFC3339))
	}
	return docs
}
