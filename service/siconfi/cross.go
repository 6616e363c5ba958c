/*
 * @module service/siconfi/cross
 * @description 维度 D2-D4：矩阵（MSC）与决算（DCA）、RREO、RGF 的交叉核对
 * @architecture 规则目录 - 声明式对比为主，特殊逻辑使用普通函数
 * @documentReference DESIGN.md
 * @stateFlow 两侧过滤 -> 按键分组求和 -> 外连接 -> 逐期间分级
 * @rules 期间对齐以两侧都已交付为准；州与市的限额分支由实体类型决定
 * @dependencies siconfi-service/service/reconcile, siconfi-service/service/tabular
 * @refs catalogue.go, quality.go
 */

package siconfi

import (
	"fmt"
	"strings"

	"siconfi-service/service/reconcile"
	"siconfi-service/service/tabular"
)

// 报表附表
const (
	AnnexBalanceSheet = "DCA-Anexo I-AB"
	AnnexResult       = "DCA-Anexo I-HI"
	AnnexRREOBudget   = "RREO-Anexo 01"
	AnnexRGFPersonnel = "RGF-Anexo 01"
	AnnexRGFCash      = "RGF-Anexo 05"
)

// 人员支出占 RCL 的上限（行政权）
const (
	PersonnelLimitState        = 0.49
	PersonnelLimitMunicipality = 0.54
)

// PersonnelLimit 按实体类型返回人员支出上限
func PersonnelLimit(e reconcile.EntityType) float64 {
	if e == reconcile.EntityState {
		return PersonnelLimitState
	}
	return PersonnelLimitMunicipality
}

func accountClass(col string) func(tabular.Row) interface{} {
	return func(r tabular.Row) interface{} { return AccountClass(r.Text(col)) }
}

// classTotal DCA 中只取类别合计行（"P1.0.0.0.0.00.00"），避免层级小计重复计数
func classTotal(r tabular.Row) bool {
	digits := 0
	for _, c := range r.Text(ColAccountCode) {
		if c < '0' || c > '9' {
			continue
		}
		digits++
		if digits > 1 && c != '0' {
			return false
		}
	}
	return digits > 0
}

// balanceByClass MSC 年末余额按类别与 DCA 附表类别合计对比
func balanceByClass(annex string, classes ...int) reconcile.Comparison {
	cls := make([]interface{}, len(classes))
	prefixes := make([]string, len(classes))
	for i, c := range classes {
		cls[i] = c
		prefixes[i] = fmt.Sprint(c)
	}
	return reconcile.Comparison{
		Left: reconcile.Side{
			Dataset: FamilyMSC,
			Filter: tabular.And(
				tabular.Eq(ColMonth, 12),
				tabular.Eq(ColValueType, EndingBalance),
				tabular.HasPrefix(ColAccount, prefixes...),
			),
			Value: "saldo",
			Derive: map[string]func(tabular.Row) interface{}{
				ColClass: accountClass(ColAccount),
				"saldo":  signedBalance,
			},
		},
		Right: reconcile.Side{
			Dataset: FamilyDCA,
			Filter: tabular.And(
				tabular.EqualFold(ColAnnex, annex),
				tabular.In(ColClass, cls...),
				tabular.Where(classTotal, ColAccountCode),
			),
			Value: ColValue,
			Derive: map[string]func(tabular.Row) interface{}{
				ColClass: accountClass(ColAccountCode),
			},
		},
		On:          []string{ColClass},
		EvidenceAll: true,
	}
}

// requireDecember 年度对比需要 12 月矩阵
func requireDecember(c reconcile.Comparison) reconcile.CheckFunc {
	return func(rc *reconcile.RuleContext) (reconcile.Result, error) {
		if !containsInt(rc.Periods(FamilyMSC), 12) {
			return reconcile.NotApplicable("december trial balance not delivered"), nil
		}
		return c.Check(rc)
	}
}

func annualStatement() reconcile.Dimension {
	return reconcile.Dimension{
		Code:     "D2",
		Name:     "MSC x DCA",
		Requires: []string{FamilyMSC, FamilyDCA},
		Rules: []reconcile.Rule{
			{
				Code:        "D2_00010",
				Description: "Ativo e passivo da MSC de dezembro iguais ao Balanço Patrimonial da DCA",
				Scoring:     reconcile.SingleShot,
				Check:       requireDecember(balanceByClass(AnnexBalanceSheet, 1, 2)),
			},
			{
				Code:        "D2_00020",
				Description: "VPD e VPA da MSC de dezembro iguais à DVP da DCA",
				Scoring:     reconcile.SingleShot,
				Check:       requireDecember(balanceByClass(AnnexResult, 3, 4)),
			},
		},
	}
}

// alignedPeriods 报表已交付、且对应月末的矩阵也已交付的期间；monthsPer 为每个报表期间包含的月数
func alignedPeriods(family string, monthsPer int) func(*reconcile.RuleContext) []int {
	return func(rc *reconcile.RuleContext) []int {
		msc := rc.Periods(FamilyMSC)
		var out []int
		for _, p := range rc.Periods(family) {
			if containsInt(msc, p*monthsPer) {
				out = append(out, p)
			}
		}
		return out
	}
}

// periodEnd 仅保留报表期间最后一个月的矩阵行，并派生报表期间列
func periodEnd(monthsPer int) (tabular.Predicate, func(tabular.Row) interface{}) {
	filter := tabular.Where(func(r tabular.Row) bool {
		m := r.Int(ColMonth)
		return m <= 12 && m%monthsPer == 0
	}, ColMonth)
	derive := func(r tabular.Row) interface{} { return r.Int(ColMonth) / monthsPer }
	return filter, derive
}

// mscVersusReport 矩阵科目期末余额（年内累计）与报表某行某列逐期间对比
func mscVersusReport(family, annex, label, column string, monthsPer int, periodCol string, prefixes ...string) reconcile.Comparison {
	endFilter, derivePeriod := periodEnd(monthsPer)
	return reconcile.Comparison{
		Left: reconcile.Side{
			Dataset: FamilyMSC,
			Filter: tabular.And(
				endFilter,
				tabular.Eq(ColValueType, EndingBalance),
				tabular.HasPrefix(ColAccount, prefixes...),
			),
			Value: "saldo",
			Derive: map[string]func(tabular.Row) interface{}{
				periodCol: derivePeriod,
				"saldo":   signedBalance,
			},
		},
		Right: reconcile.Side{
			Dataset: family,
			Filter: tabular.And(
				tabular.EqualFold(ColAnnex, annex),
				tabular.FoldPrefix(ColLabel, label),
				tabular.FoldPrefix(ColColumn, column),
			),
			Keys:  []string{ColPeriod},
			Value: ColValue,
		},
		On:           []string{periodCol},
		PeriodColumn: periodCol,
		Periods:      alignedPeriods(family, monthsPer),
	}
}

var roundingTolerance = reconcile.Tolerance{Primary: reconcile.DefaultPrimaryTolerance, Rounding: 1.0}

func budgetExecution() reconcile.Dimension {
	return reconcile.Dimension{
		Code:     "D3",
		Name:     "MSC x RREO",
		Requires: []string{FamilyMSC, FamilyRREO},
		Rules: []reconcile.Rule{
			{
				Code:        "D3_00010",
				Description: "Receita realizada na MSC igual à receita até o bimestre no RREO Anexo 01",
				Scoring:     reconcile.PerPeriod,
				Tolerance:   &roundingTolerance,
				Check: mscVersusReport(FamilyRREO, AnnexRREOBudget,
					"total das receitas", "ate o bimestre", 2, ColBimester, "6212").Check,
			},
			{
				Code:        "D3_00020",
				Description: "Despesa liquidada na MSC igual à despesa liquidada até o bimestre no RREO Anexo 01",
				Scoring:     reconcile.PerPeriod,
				MinYear:     2023,
				Check: mscVersusReport(FamilyRREO, AnnexRREOBudget,
					"total das despesas", "despesas liquidadas ate o bimestre", 2, ColBimester, "6221303", "6221304").Check,
			},
		},
	}
}

func fiscalManagement() reconcile.Dimension {
	return reconcile.Dimension{
		Code:     "D4",
		Name:     "MSC x RGF",
		Requires: []string{FamilyMSC, FamilyRGF},
		Rules: []reconcile.Rule{
			{
				Code:        "D4_00010",
				Description: "Disponibilidade de caixa bruta do RGF Anexo 05 igual ao saldo de caixa e equivalentes na MSC",
				Scoring:     reconcile.PerPeriod,
				Check: mscVersusReport(FamilyRGF, AnnexRGFCash,
					"total", "disponibilidade de caixa bruta", 4, ColQuarter, "1111").Check,
			},
			{
				Code:        "D4_00020",
				Description: "Despesa total com pessoal dentro do limite da LRF sobre a RCL",
				Scoring:     reconcile.PerPeriod,
				Check:       checkPersonnelLimit,
			},
		},
	}
}

// checkPersonnelLimit DTP/RCL 与限额比较；每个四月期必须恰好有一行 DTP 和一行 RCL
func checkPersonnelLimit(rc *reconcile.RuleContext) (reconcile.Result, error) {
	rgf, err := rc.Dataset(FamilyRGF)
	if err != nil {
		return reconcile.Result{}, err
	}
	annex, err := rgf.Filter(tabular.And(
		tabular.EqualFold(ColAnnex, AnnexRGFPersonnel),
		tabular.EqualFold(ColColumn, "valor"),
	))
	if err != nil {
		return reconcile.Result{}, err
	}

	limit := PersonnelLimit(rc.Params().EntityType)
	var evidence []tabular.Row
	res, err := rc.PerPeriod(rc.Periods(FamilyRGF), func(p int) (reconcile.Status, error) {
		period, err := annex.Filter(tabular.Eq(ColPeriod, p))
		if err != nil {
			return "", err
		}
		if period.IsEmpty() {
			return reconcile.StatusNotApplicable, nil
		}
		dtp, err := singleValue(period, "despesa total com pessoal")
		if err != nil {
			return "", err
		}
		rcl, err := singleValue(period, "receita corrente liquida")
		if err != nil {
			return "", err
		}
		if rcl == 0 {
			return reconcile.StatusNotApplicable, nil
		}
		ratio := tabular.Round(dtp/rcl, 4)
		status := reconcile.StatusOK
		if ratio > limit {
			status = reconcile.StatusError
		}
		evidence = append(evidence, tabular.Row{
			ColQuarter: p, "dtp": dtp, "rcl": rcl, "percentual": ratio, "limite": limit, reconcile.ColStatus: string(status),
		})
		return status, nil
	})
	if err != nil {
		return reconcile.Result{}, err
	}
	res.Evidence = tabular.New("pessoal", []string{ColQuarter, "dtp", "rcl", "percentual", "limite", reconcile.ColStatus}, evidence)
	if res.Failed > 0 {
		res.Note = strings.TrimSpace(fmt.Sprintf("%s (limit %.2f for %s)", res.Note, limit, rc.Params().EntityType))
	}
	return res, nil
}

func singleValue(ds *tabular.Dataset, label string) (float64, error) {
	rows, err := ds.Filter(tabular.FoldPrefix(ColLabel, label))
	if err != nil {
		return 0, err
	}
	row, err := rows.WithName(ds.Name() + ":" + label).Single()
	if err != nil {
		return 0, err
	}
	return row.Number(ColValue), nil
}
