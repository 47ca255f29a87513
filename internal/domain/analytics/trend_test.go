package analytics

import (
	"math"
	"testing"
	"time"
)

func series(values ...float64) []Point {
	out := make([]Point, len(values))
	for i, v := range values {
		out[i] = Point{Index: i, Value: v}
	}
	return out
}

func TestAnalyzeTrendInsufficientData(t *testing.T) {
	for _, s := range [][]Point{nil, series(42)} {
		res := AnalyzeTrend("score", s)
		if res.Direction != DirectionStable {
			t.Errorf("direction = %q, want stable", res.Direction)
		}
		if res.Slope != 0 {
			t.Errorf("slope = %v, want 0", res.Slope)
		}
		if res.Significance != SignificanceInsufficient {
			t.Errorf("significance = %q, want insufficient_data", res.Significance)
		}
		if res.Confidence != "low" {
			t.Errorf("confidence = %q, want low", res.Confidence)
		}
	}
}

func TestAnalyzeTrendIncreasing(t *testing.T) {
	res := AnalyzeTrend("score", series(10, 20, 30, 40))
	if res.Direction != DirectionImproving {
		t.Errorf("direction = %q, want improving", res.Direction)
	}
	if res.Slope <= 0 {
		t.Errorf("slope = %v, want positive", res.Slope)
	}
	if math.Abs(res.Slope-10) > 1e-9 {
		t.Errorf("slope = %v, want 10", res.Slope)
	}
	if math.Abs(res.Correlation-1) > 1e-9 {
		t.Errorf("correlation = %v, want 1", res.Correlation)
	}
	if res.Significance != SignificanceSignificant {
		t.Errorf("significance = %q, want significant", res.Significance)
	}
	if res.Confidence != "high" {
		t.Errorf("confidence = %q, want high", res.Confidence)
	}
}

func TestAnalyzeTrendDecreasing(t *testing.T) {
	res := AnalyzeTrend("score", series(40, 30, 20))
	if res.Direction != DirectionDeclining {
		t.Errorf("direction = %q, want declining", res.Direction)
	}
	if res.Correlation > -0.99 {
		t.Errorf("correlation = %v, want near -1", res.Correlation)
	}
}

func TestAnalyzeTrendConstant(t *testing.T) {
	res := AnalyzeTrend("score", series(25, 25, 25, 25))
	if res.Direction != DirectionStable {
		t.Errorf("direction = %q, want stable", res.Direction)
	}
	if res.Slope != 0 {
		t.Errorf("slope = %v, want 0", res.Slope)
	}
	if res.Significance != SignificanceNotSignificant {
		t.Errorf("significance = %q, want not_significant", res.Significance)
	}
}

func TestAnalyzeTrendNoiseBelowEpsilonIsStable(t *testing.T) {
	res := AnalyzeTrend("score", series(50, 50.001, 50.002))
	if res.Direction != DirectionStable {
		t.Errorf("direction = %q, want stable for sub-epsilon slope", res.Direction)
	}
}

func TestAnalyzeTrendDeterministic(t *testing.T) {
	s := series(5, 9, 2, 14, 11)
	a := AnalyzeTrend("score", s)
	b := AnalyzeTrend("score", s)
	if a != b {
		t.Errorf("results differ: %+v vs %+v", a, b)
	}
}

func TestGroupByPeriodDay(t *testing.T) {
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	points := []TimedPoint{
		{At: base, Value: 10},
		{At: base.Add(2 * time.Hour), Value: 20},
		{At: base.AddDate(0, 0, 1), Value: 40},
		{At: base.AddDate(0, 0, 3), Value: 60},
	}
	grouped := GroupByPeriod(points, PeriodDay)
	if len(grouped) != 3 {
		t.Fatalf("groups = %d, want 3", len(grouped))
	}
	if grouped[0].Index != 0 || grouped[0].Value != 15 {
		t.Errorf("first = %+v, want index 0 value 15", grouped[0])
	}
	if grouped[1].Index != 1 || grouped[1].Value != 40 {
		t.Errorf("second = %+v", grouped[1])
	}
	// The empty day keeps its distance.
	if grouped[2].Index != 3 {
		t.Errorf("third index = %d, want 3", grouped[2].Index)
	}
}

func TestGroupByPeriodWeekAndMonth(t *testing.T) {
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) // a Monday
	points := []TimedPoint{
		{At: base, Value: 10},
		{At: base.AddDate(0, 0, 6), Value: 30},  // same ISO week
		{At: base.AddDate(0, 0, 7), Value: 50},  // next week
		{At: base.AddDate(0, 1, 0), Value: 100}, // next month
	}

	weekly := GroupByPeriod(points, PeriodWeek)
	if len(weekly) < 2 {
		t.Fatalf("weekly groups = %d, want >= 2", len(weekly))
	}
	if weekly[0].Value != 20 {
		t.Errorf("first week avg = %v, want 20", weekly[0].Value)
	}
	if weekly[1].Index != 1 || weekly[1].Value != 50 {
		t.Errorf("second week = %+v", weekly[1])
	}

	monthly := GroupByPeriod(points, PeriodMonth)
	if len(monthly) != 2 {
		t.Fatalf("monthly groups = %d, want 2", len(monthly))
	}
	if monthly[0].Value != 30 {
		t.Errorf("first month avg = %v, want 30", monthly[0].Value)
	}
	if monthly[1].Index != 1 || monthly[1].Value != 100 {
		t.Errorf("second month = %+v", monthly[1])
	}
}

func TestGroupByPeriodEmpty(t *testing.T) {
	if got := GroupByPeriod(nil, PeriodDay); got != nil {
		t.Errorf("grouped = %v, want nil", got)
	}
}
