package attribution

// Share is the credit and value accumulated by one source or campaign.
type Share struct {
	Credit float64 `json:"credit"`
	Value  float64 `json:"value"`
}

type Summary struct {
	Model           Model            `json:"model"`
	TouchpointCount int              `json:"touchpoint_count"`
	ConversionValue float64          `json:"conversion_value"`
	BySource        map[string]Share `json:"source_summary"`
	ByCampaign      map[string]Share `json:"campaign_summary"`
}

// Summarize groups a result by source and by campaign. Touchpoints without a
// source count as "direct"; touchpoints without a campaign are left out of
// the campaign grouping.
func Summarize(r Result) Summary {
	s := Summary{
		Model:           r.Model,
		TouchpointCount: len(r.Touchpoints),
		ConversionValue: r.ConversionValue,
		BySource:        make(map[string]Share),
		ByCampaign:      make(map[string]Share),
	}

	for _, tp := range r.Touchpoints {
		source := tp.Source
		if source == "" {
			source = "direct"
		}
		s.BySource[source] = addShare(s.BySource[source], tp)

		if tp.Campaign != "" {
			s.ByCampaign[tp.Campaign] = addShare(s.ByCampaign[tp.Campaign], tp)
		}
	}
	return s
}

func addShare(sh Share, tp Touchpoint) Share {
	sh.Credit = round2(sh.Credit + tp.Credit)
	sh.Value = round2(sh.Value + tp.Value)
	return sh
}

// ROI returns return on investment as a percentage. A zero cost yields 0.
func ROI(revenue, cost float64) float64 {
	if cost <= 0 {
		return 0
	}
	return round2((revenue - cost) / cost * 100)
}
