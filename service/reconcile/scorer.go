package reconcile

// Scorer 计分器。单条规则保留各自得分；总分 = 通过规则数 / 有得分的规则数，
// NOT_APPLICABLE 规则既不计入分子也不计入分母。
type Scorer struct {
	RoundingAsPass bool
}

// DimensionSummary 维度汇总
type DimensionSummary struct {
	Dimension     string   `json:"dimension"`
	Total         int      `json:"total"`
	Passed        int      `json:"passed"`
	Rounding      int      `json:"rounding"`
	Failed        int      `json:"failed"`
	NotApplicable int      `json:"not_applicable"`
	Score         *float64 `json:"score"`
}

func (s Scorer) passes(v Verdict) bool {
	if v.Status == StatusOKWithRounding {
		return s.RoundingAsPass
	}
	return v.Status == StatusOK
}

// Overall 计算总分，没有可计分规则时返回 nil
func (s Scorer) Overall(verdicts []Verdict) *float64 {
	scored, passed := 0, 0
	for _, v := range verdicts {
		if !v.Scored() {
			continue
		}
		scored++
		if s.passes(v) {
			passed++
		}
	}
	if scored == 0 {
		return nil
	}
	return scorePtr(float64(passed) / float64(scored))
}

// Dimensions 按维度首次出现顺序汇总
func (s Scorer) Dimensions(verdicts []Verdict) []DimensionSummary {
	var order []string
	byDim := make(map[string][]Verdict)
	for _, v := range verdicts {
		if _, ok := byDim[v.Dimension]; !ok {
			order = append(order, v.Dimension)
		}
		byDim[v.Dimension] = append(byDim[v.Dimension], v)
	}

	out := make([]DimensionSummary, 0, len(order))
	for _, d := range order {
		vs := byDim[d]
		sum := DimensionSummary{Dimension: d, Total: len(vs), Score: s.Overall(vs)}
		for _, v := range vs {
			switch v.Status {
			case StatusOK:
				sum.Passed++
			case StatusOKWithRounding:
				sum.Rounding++
			case StatusError:
				sum.Failed++
			case StatusNotApplicable:
				sum.NotApplicable++
			}
		}
		out = append(out, sum)
	}
	return out
}
