package admin

import (
	"testing"

	"github.com/studymatehub/studymate-bot/internal/gateway"
)

func TestTopicRollup(t *testing.T) {
	high, low := 0.9, 0.1
	roadmaps := []gateway.SavedRoadmapRow{
		{Topic: "Go"}, {Topic: "Go"}, {Topic: "SQL"},
	}
	feedback := []gateway.FeedbackRow{
		{Topic: "Go", SentimentScore: &high},
		{Topic: "Go", SentimentScore: &low},
		{Topic: "Go"},
		{Topic: "Docker"},
	}

	got := topicRollup(roadmaps, feedback)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].topic != "Go" || got[0].roadmaps != 2 || got[0].feedback != 3 || got[0].scored != 2 {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].topic != "SQL" || got[2].topic != "Docker" {
		t.Errorf("order = %s, %s", got[1].topic, got[2].topic)
	}
}

func TestBuildReportSheets(t *testing.T) {
	f, err := BuildReport(gateway.Stats{}, nil, nil)
	if err != nil {
		t.Fatalf("BuildReport() error = %v", err)
	}
	defer f.Close()

	want := []string{sheetSummary, sheetRoadmaps, sheetFeedback, sheetTopics}
	got := f.GetSheetList()
	if len(got) != len(want) {
		t.Fatalf("sheets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sheet %d = %q, want %q", i, got[i], want[i])
		}
	}

	header, err := f.GetCellValue(sheetFeedback, "C1")
	if err != nil {
		t.Fatal(err)
	}
	if header != "Feedback" {
		t.Errorf("Feedback!C1 = %q", header)
	}
}
