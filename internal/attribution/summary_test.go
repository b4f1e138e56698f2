package attribution

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSummarize(t *testing.T) {
	result := NewCalculator().Calculate(PositionBased, journey(), 1000, convAt)

	got := Summarize(result)

	want := Summary{
		Model:           PositionBased,
		TouchpointCount: 3,
		ConversionValue: 1000,
		BySource: map[string]Share{
			"google":     {Credit: 40, Value: 400},
			"direct":     {Credit: 20, Value: 200},
			"newsletter": {Credit: 40, Value: 400},
		},
		ByCampaign: map[string]Share{
			"brand": {Credit: 40, Value: 400},
			"june":  {Credit: 40, Value: 400},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarize_AccumulatesSameSource(t *testing.T) {
	tps := []Touchpoint{
		{Timestamp: daysBefore(2), Source: "google", Campaign: "brand"},
		{Timestamp: daysBefore(1), Source: "google", Campaign: "brand"},
	}
	got := Summarize(NewCalculator().Calculate(Linear, tps, 50, convAt))

	if got.BySource["google"] != (Share{Credit: 100, Value: 50}) {
		t.Errorf("google share = %+v, want credit 100 value 50", got.BySource["google"])
	}
	if len(got.ByCampaign) != 1 {
		t.Errorf("expected 1 campaign, got %d", len(got.ByCampaign))
	}
}

func TestROI(t *testing.T) {
	tests := []struct {
		name          string
		revenue, cost float64
		want          float64
	}{
		{name: "profit", revenue: 1500, cost: 1000, want: 50},
		{name: "loss", revenue: 250, cost: 1000, want: -75},
		{name: "zero cost", revenue: 900, cost: 0, want: 0},
		{name: "fractional", revenue: 100, cost: 30, want: 233.33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ROI(tt.revenue, tt.cost); got != tt.want {
				t.Errorf("ROI(%v, %v) = %v, want %v", tt.revenue, tt.cost, got, tt.want)
			}
		})
	}
}
