package admin

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/studymatehub/studymate-bot/internal/gateway"
)

const (
	sheetSummary  = "Summary"
	sheetRoadmaps = "Roadmaps"
	sheetFeedback = "Feedback"
	sheetTopics   = "Topics"
)

// BuildReport lays the dashboard data out as a workbook with one sheet per
// table plus a per-topic rollup. The caller closes the file.
func BuildReport(stats gateway.Stats, roadmaps []gateway.SavedRoadmapRow, feedback []gateway.FeedbackRow) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := buildReport(f, stats, roadmaps, feedback); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func buildReport(f *excelize.File, stats gateway.Stats, roadmaps []gateway.SavedRoadmapRow, feedback []gateway.FeedbackRow) error {
	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{sheetRoadmaps, sheetFeedback, sheetTopics} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("add sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	summary := [][]any{
		{"Metric", "Value"},
		{"Users", stats.Users},
		{"Saved roadmaps", stats.Roadmaps},
		{"Satisfaction", stats.Satisfaction},
		{"Feedback entries", len(feedback)},
	}
	if err := writeRows(f, sheetSummary, summary, bold); err != nil {
		return err
	}

	rows := [][]any{{"ID", "Topic", "Created"}}
	for _, rm := range roadmaps {
		rows = append(rows, []any{string(rm.ID), rm.Topic, rm.CreatedAt})
	}
	if err := writeRows(f, sheetRoadmaps, rows, bold); err != nil {
		return err
	}

	rows = [][]any{{"Topic", "Step", "Feedback", "Sentiment"}}
	for _, fb := range feedback {
		var sentiment any = ""
		if fb.SentimentScore != nil {
			sentiment = *fb.SentimentScore
		}
		rows = append(rows, []any{fb.Topic, fb.NodeLabel, fb.FeedbackText, sentiment})
	}
	if err := writeRows(f, sheetFeedback, rows, bold); err != nil {
		return err
	}

	rows = [][]any{{"Topic", "Saved roadmaps", "Feedback entries", "Average sentiment"}}
	for _, t := range topicRollup(roadmaps, feedback) {
		var avg any = ""
		if t.scored > 0 {
			avg = t.sentimentSum / float64(t.scored)
		}
		rows = append(rows, []any{t.topic, t.roadmaps, t.feedback, avg})
	}
	if err := writeRows(f, sheetTopics, rows, bold); err != nil {
		return err
	}

	for _, name := range []string{sheetRoadmaps, sheetFeedback, sheetTopics} {
		if err := f.SetColWidth(name, "A", "C", 28); err != nil {
			return fmt.Errorf("column width %s: %w", name, err)
		}
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if len(rows) > 0 {
		if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
			return fmt.Errorf("style %s header: %w", sheet, err)
		}
	}
	return nil
}

type topicStats struct {
	topic        string
	roadmaps     int
	feedback     int
	scored       int
	sentimentSum float64
}

// topicRollup groups roadmaps and feedback by topic, busiest topics first.
func topicRollup(roadmaps []gateway.SavedRoadmapRow, feedback []gateway.FeedbackRow) []topicStats {
	byTopic := make(map[string]*topicStats)
	get := func(topic string) *topicStats {
		t, ok := byTopic[topic]
		if !ok {
			t = &topicStats{topic: topic}
			byTopic[topic] = t
		}
		return t
	}
	for _, rm := range roadmaps {
		get(rm.Topic).roadmaps++
	}
	for _, fb := range feedback {
		t := get(fb.Topic)
		t.feedback++
		if fb.SentimentScore != nil {
			t.scored++
			t.sentimentSum += *fb.SentimentScore
		}
	}

	out := make([]topicStats, 0, len(byTopic))
	for _, t := range byTopic {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].roadmaps != out[j].roadmaps {
			return out[i].roadmaps > out[j].roadmaps
		}
		return out[i].topic < out[j].topic
	})
	return out
}
