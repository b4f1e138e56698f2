package attribution

import (
	"fmt"
	"strings"
	"time"
)

// Model is a rule for distributing conversion credit across touchpoints.
type Model string

const (
	LastTouch     Model = "last_touch"
	FirstTouch    Model = "first_touch"
	Linear        Model = "linear"
	TimeDecay     Model = "time_decay"
	PositionBased Model = "position_based"
	DataDriven    Model = "data_driven"
)

// Models lists every supported model in display order.
var Models = []Model{LastTouch, FirstTouch, Linear, TimeDecay, PositionBased, DataDriven}

var modelNames = strings.NewReplacer(" ", "_", "-", "_")

// ParseModel accepts both identifiers ("time_decay") and display names
// ("Time Decay").
func ParseModel(s string) (Model, error) {
	norm := modelNames.Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, m := range Models {
		if string(m) == norm {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown attribution model %q", s)
}

// Touchpoint is a recorded marketing interaction that may receive credit.
type Touchpoint struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	URL       string    `json:"url,omitempty"`
	Source    string    `json:"source,omitempty"`
	Medium    string    `json:"medium,omitempty"`
	Campaign  string    `json:"campaign,omitempty"`
	Credit    float64   `json:"credit"`
	Value     float64   `json:"value"`
}

// Channel groups touchpoints for the data-driven model.
func (t Touchpoint) Channel() string {
	switch {
	case t.Source == "":
		return "direct"
	case t.Medium == "":
		return t.Source
	default:
		return t.Source + "/" + t.Medium
	}
}

// Result holds the touchpoints of one conversion with their credit filled in.
// Credit is a percentage; TotalCredit is 100 whenever at least one
// touchpoint was eligible.
type Result struct {
	Model           Model        `json:"model"`
	Touchpoints     []Touchpoint `json:"touchpoints"`
	TotalCredit     float64      `json:"total_credit"`
	ConversionValue float64      `json:"conversion_value"`
}
