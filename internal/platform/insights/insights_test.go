package insights

import (
	"context"
	"errors"
	"testing"
)

func TestParseReply(t *testing.T) {
	reply := `REC: Increase ambulation supervision during night shifts.
ALERT: Fall risk score crossed the high band.
Patient shows a gradual decline in mobility scores.
REC: Review diuretic timing with the prescriber.
Trend remains significant over the last month.`

	got := parseReply(reply)
	if len(got.Recommendations) != 2 {
		t.Fatalf("recommendations = %d, want 2", len(got.Recommendations))
	}
	if got.Recommendations[0] != "Increase ambulation supervision during night shifts." {
		t.Errorf("first recommendation = %q", got.Recommendations[0])
	}
	if len(got.Alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(got.Alerts))
	}
	want := "Patient shows a gradual decline in mobility scores. Trend remains significant over the last month."
	if got.Narrative != want {
		t.Errorf("narrative = %q, want %q", got.Narrative, want)
	}
}

func TestParseReplyEmpty(t *testing.T) {
	got := parseReply("")
	if len(got.Recommendations) != 0 || len(got.Alerts) != 0 || got.Narrative != "" {
		t.Errorf("parseReply(\"\") = %+v, want empty", got)
	}
}

func TestDisabledGenerator(t *testing.T) {
	_, err := Disabled{}.GenerateInsights(context.Background(), "assessment", nil)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}
