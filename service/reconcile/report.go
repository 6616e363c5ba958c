/*
 * @module service/reconcile/report
 * @description 报告组装：按规则注册顺序输出判定行，并提供按规则编码索引的证据
 * @architecture 组装器模式
 * @documentReference DESIGN.md
 * @stateFlow 判定+证据 -> 计分 -> 报告
 * @rules 输出顺序只取决于规则注册顺序，不按得分或状态排序
 * @dependencies siconfi-service/service/tabular
 * @refs scorer.go
 */

package reconcile

import "siconfi-service/service/tabular"

// 报告表格列
const (
	ColDimension   = "dimension"
	ColCode        = "dimension_code"
	ColStatus      = "status"
	ColDescription = "description"
	ColScore       = "score"
	ColNote        = "note"
)

// Report 最终报告
type Report struct {
	Rows       []Verdict                   `json:"rows"`
	Overall    *float64                    `json:"overall"`
	Dimensions []DimensionSummary          `json:"dimensions"`
	Evidence   map[string]*tabular.Dataset `json:"-"`
}

// Assemble 组装报告
func Assemble(outcomes []Outcome, scorer Scorer) *Report {
	r := &Report{
		Rows:     make([]Verdict, 0, len(outcomes)),
		Evidence: make(map[string]*tabular.Dataset),
	}
	for _, o := range outcomes {
		r.Rows = append(r.Rows, o.Verdict)
		if o.Evidence != nil {
			r.Evidence[o.Verdict.Code] = o.Evidence
		}
	}
	r.Overall = scorer.Overall(r.Rows)
	r.Dimensions = scorer.Dimensions(r.Rows)
	return r
}

// EvidenceFor 规则证据
func (r *Report) EvidenceFor(code string) (*tabular.Dataset, bool) {
	ds, ok := r.Evidence[code]
	if !ok {
		return nil, false
	}
	return ds.Clone(), true
}

// Verdict 按编码查找判定
func (r *Report) Verdict(code string) (Verdict, bool) {
	for _, v := range r.Rows {
		if v.Code == code {
			return v, true
		}
	}
	return Verdict{}, false
}

// Table 以表格形式输出报告
func (r *Report) Table() *tabular.Dataset {
	rows := make([]tabular.Row, 0, len(r.Rows))
	for _, v := range r.Rows {
		var score interface{}
		if v.Score != nil {
			score = *v.Score
		}
		rows = append(rows, tabular.Row{
			ColDimension:   v.Dimension,
			ColCode:        v.Code,
			ColStatus:      string(v.Status),
			ColDescription: v.Description,
			ColScore:       score,
			ColNote:        v.Note,
		})
	}
	return tabular.New("report", []string{ColDimension, ColCode, ColStatus, ColDescription, ColScore, ColNote}, rows)
}
