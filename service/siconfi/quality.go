/*
 * @module service/siconfi/quality
 * @description 维度 D1：矩阵（MSC）数据质量检查
 * @architecture 规则目录 - 每条规则是独立的纯函数
 * @documentReference DESIGN.md
 * @stateFlow 读取矩阵副本 -> 过滤/分组 -> 逐期间判定 -> 证据
 * @rules 空结果的含义在每条规则内显式声明；不依赖固定日历计算分母
 * @dependencies siconfi-service/service/reconcile, siconfi-service/service/tabular
 * @refs catalogue.go
 */

package siconfi

import (
	"errors"
	"fmt"
	"math"

	"siconfi-service/service/reconcile"
	"siconfi-service/service/tabular"
)

// normalNature 科目正常余额方向：1/3/5/7 类为借方，其余为贷方
func normalNature(class int) string {
	if class%2 == 1 {
		return Debit
	}
	return Credit
}

// signedBalance 按正常方向带符号的余额，反向余额为负
func signedBalance(r tabular.Row) interface{} {
	v := r.Number(ColValue)
	if r.Text(ColNature) != normalNature(AccountClass(r.Text(ColAccount))) {
		return -v
	}
	return v
}

func quality() reconcile.Dimension {
	return reconcile.Dimension{
		Code:     "D1",
		Name:     "Qualidade da MSC",
		Requires: []string{FamilyMSC},
		Rules: []reconcile.Rule{
			{
				Code:        "D1_00010",
				Description: "Todas as MSC mensais do exercício foram entregues",
				Scoring:     reconcile.SingleShot,
				Check:       checkDelivered,
			},
			{
				Code:        "D1_00020",
				Description: "Saldo inicial do mês igual ao saldo final do mês anterior",
				Scoring:     reconcile.PerPeriod,
				Check:       continuity().Check,
			},
			{
				Code:        "D1_00030",
				Description: "MSC sem valores negativos",
				Scoring:     reconcile.PerPeriod,
				Check:       checkNoNegativeValues,
			},
			{
				Code:        "D1_00040",
				Description: "Total de saldos devedores igual ao total de saldos credores",
				Scoring:     reconcile.PerPeriod,
				Check:       checkDebitEqualsCredit,
			},
			{
				Code:        "D1_00050",
				Description: "MSC de encerramento zera as contas de resultado (classes 3 e 4)",
				Scoring:     reconcile.SingleShot,
				Requires:    []string{FamilyMSCClosing},
				Check:       checkClosingZeroesResult,
			},
		},
	}
}

// checkDelivered 交付检查本身衡量完整性，因此以预期期间为准
func checkDelivered(rc *reconcile.RuleContext) (reconcile.Result, error) {
	info := rc.Availability(FamilyMSC)
	rows := make([]tabular.Row, 0, len(info.Expected))
	for _, p := range info.Expected {
		rows = append(rows, tabular.Row{ColMonth: p, "entregue": containsInt(info.PeriodsPresent, p)})
	}
	evidence := tabular.New("msc_entregas", []string{ColMonth, "entregue"}, rows)
	if info.Complete {
		return reconcile.StatusResult(reconcile.StatusOK, info.Message, evidence), nil
	}
	return reconcile.StatusResult(reconcile.StatusError, info.Message, evidence), nil
}

// continuity SI(t) = SF(t-1)：上月期末余额整体平移到下个月后与本月期初余额外连接比较。
// 上月存在而本月消失的非零余额（left_only）同样是差异。
func continuity() reconcile.Comparison {
	return reconcile.Comparison{
		Left: reconcile.Side{
			Dataset: FamilyMSC,
			Filter:  tabular.Eq(ColValueType, EndingBalance),
			Keys:    []string{ColAccount, ColNextMonth},
			Value:   "saldo",
			Derive: map[string]func(tabular.Row) interface{}{
				ColNextMonth: func(r tabular.Row) interface{} { return r.Int(ColMonth) + 1 },
				"saldo":      signedBalance,
			},
		},
		Right: reconcile.Side{
			Dataset: FamilyMSC,
			Filter:  tabular.Eq(ColValueType, BeginningBalance),
			Value:   "saldo",
			Derive: map[string]func(tabular.Row) interface{}{
				"saldo": signedBalance,
			},
		},
		On:           []string{ColAccount, ColMonth},
		PeriodColumn: ColMonth,
		Periods:      consecutiveMonths,
	}
}

// consecutiveMonths 本月和上月都已交付的月份
func consecutiveMonths(rc *reconcile.RuleContext) []int {
	present := rc.Periods(FamilyMSC)
	var out []int
	for _, m := range present {
		if m > 1 && containsInt(present, m-1) {
			out = append(out, m)
		}
	}
	return out
}

// mscWithClosing 矩阵数据，若结账矩阵已加载则一并纳入
func mscWithClosing(rc *reconcile.RuleContext) (*tabular.Dataset, error) {
	msc, err := rc.Dataset(FamilyMSC)
	if err != nil {
		return nil, err
	}
	closing, err := rc.Dataset(FamilyMSCClosing)
	switch {
	case errors.Is(err, reconcile.ErrDatasetMissing):
		return msc, nil
	case err != nil:
		return nil, err
	}
	return tabular.Concat(FamilyMSC, msc, closing), nil
}

// checkNoNegativeValues 分母是数据中实际出现的期间；某期间没有负值即为通过
func checkNoNegativeValues(rc *reconcile.RuleContext) (reconcile.Result, error) {
	ds, err := mscWithClosing(rc)
	if err != nil {
		return reconcile.Result{}, err
	}
	periods, err := reconcile.DistinctPeriods(ds, ColMonth)
	if err != nil {
		return reconcile.Result{}, err
	}
	negative, err := ds.Filter(tabular.Lt(ColValue, 0))
	if err != nil {
		return reconcile.Result{}, err
	}

	res, err := rc.PerPeriod(periods, func(p int) (reconcile.Status, error) {
		rows, err := negative.Filter(tabular.Eq(ColMonth, p))
		if err != nil {
			return "", err
		}
		if rows.IsEmpty() {
			return reconcile.StatusOK, nil
		}
		return reconcile.StatusError, nil
	})
	if err != nil {
		return reconcile.Result{}, err
	}
	if !negative.IsEmpty() {
		res.Evidence, err = negative.SortBy(ColMonth, ColAccount)
		if err != nil {
			return reconcile.Result{}, err
		}
	}
	return res, nil
}

func checkDebitEqualsCredit(rc *reconcile.RuleContext) (reconcile.Result, error) {
	msc, err := rc.Dataset(FamilyMSC)
	if err != nil {
		return reconcile.Result{}, err
	}
	ending, err := msc.Filter(tabular.Eq(ColValueType, EndingBalance))
	if err != nil {
		return reconcile.Result{}, err
	}
	byNature, err := ending.GroupSum([]string{ColMonth, ColNature}, ColValue)
	if err != nil {
		return reconcile.Result{}, err
	}

	var evidence []tabular.Row
	res, err := rc.PerPeriod(rc.Periods(FamilyMSC), func(p int) (reconcile.Status, error) {
		month, err := byNature.Filter(tabular.Eq(ColMonth, p))
		if err != nil {
			return "", err
		}
		if month.IsEmpty() {
			return reconcile.StatusNotApplicable, nil
		}
		debit, err := sumWhere(month, tabular.Eq(ColNature, Debit))
		if err != nil {
			return "", err
		}
		credit, err := sumWhere(month, tabular.Eq(ColNature, Credit))
		if err != nil {
			return "", err
		}
		diff := tabular.Diff(debit, credit)
		status := rc.Classify(diff)
		evidence = append(evidence, tabular.Row{
			ColMonth: p, "devedor": debit, "credor": credit, "diferenca": diff, reconcile.ColStatus: string(status),
		})
		return status, nil
	})
	if err != nil {
		return reconcile.Result{}, err
	}
	res.Evidence = tabular.New("debito_credito", []string{ColMonth, "devedor", "credor", "diferenca", reconcile.ColStatus}, evidence)
	return res, nil
}

func sumWhere(ds *tabular.Dataset, p tabular.Predicate) (float64, error) {
	rows, err := ds.Filter(p)
	if err != nil {
		return 0, err
	}
	return rows.Sum(ColValue)
}

// checkClosingZeroesResult 结账后 3/4 类科目期末余额必须为零；没有任何非零余额即为通过
func checkClosingZeroesResult(rc *reconcile.RuleContext) (reconcile.Result, error) {
	closing, err := rc.Dataset(FamilyMSCClosing)
	if err != nil {
		return reconcile.Result{}, err
	}
	tol := rc.Tolerance().Primary
	residual, err := closing.Filter(tabular.And(
		tabular.Eq(ColValueType, EndingBalance),
		tabular.HasPrefix(ColAccount, "3", "4"),
		tabular.Where(func(r tabular.Row) bool { return math.Abs(r.Number(ColValue)) > tol }, ColValue),
	))
	if err != nil {
		return reconcile.Result{}, err
	}
	if residual.IsEmpty() {
		return reconcile.StatusResult(reconcile.StatusOK, "", nil), nil
	}
	note := fmt.Sprintf("%d result account(s) with non-zero closing balance", residual.Len())
	return reconcile.StatusResult(reconcile.StatusError, note, residual), nil
}
