/*
 * @module service/siconfi/families
 * @description 数据族定义（矩阵、决算、RREO、RGF）与交付记录到可用性信息的转换
 * @architecture 配置数据
 * @documentReference DESIGN.md
 * @stateFlow 交付记录 -> 按数据族归集期间 -> AvailabilityInfo
 * @rules 只有已homologado或retificado的交付计入已交付期间；未知的交付物忽略
 * @dependencies siconfi-service/service/reconcile, siconfi-service/service/tabular
 * @refs rows.go, catalogue.go
 */

package siconfi

import (
	"fmt"
	"strings"

	"siconfi-service/service/reconcile"
	"siconfi-service/service/tabular"
)

// 数据族
const (
	FamilyMSC        = "msc"
	FamilyMSCClosing = "msc_encerramento"
	FamilyDCA        = "dca"
	FamilyRREO       = "rreo"
	FamilyRGF        = "rgf"
)

// ClosingMonth 矩阵中的年末结账期间
const ClosingMonth = 13

// Family 数据族描述
type Family struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Expected []int  `json:"expected_periods"`
	// Labels 交付记录中对应的 entregavel 名称（已折叠）
	Labels []string `json:"-"`
}

func periodRange(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for p := from; p <= to; p++ {
		out = append(out, p)
	}
	return out
}

// Families 全部数据族，按声明顺序
func Families() []Family {
	return []Family{
		{Code: FamilyMSC, Name: "Matriz de Saldos Contábeis", Expected: periodRange(1, 12),
			Labels: []string{"msc agregada", "msc patrimonial", "msc orcamentaria", "msc controle", "matriz de saldos contabeis"}},
		{Code: FamilyMSCClosing, Name: "MSC Encerramento", Expected: []int{ClosingMonth},
			Labels: []string{"msc encerramento"}},
		{Code: FamilyDCA, Name: "Declaração de Contas Anuais", Expected: []int{1},
			Labels: []string{"balanco anual (dca)", "balanco anual", "dca"}},
		{Code: FamilyRREO, Name: "Relatório Resumido da Execução Orçamentária", Expected: periodRange(1, 6),
			Labels: []string{"rreo", "relatorio resumido da execucao orcamentaria"}},
		{Code: FamilyRGF, Name: "Relatório de Gestão Fiscal", Expected: periodRange(1, 3),
			Labels: []string{"rgf", "relatorio de gestao fiscal"}},
	}
}

// FamilyByCode 按编码查找数据族
func FamilyByCode(code string) (Family, bool) {
	for _, f := range Families() {
		if f.Code == code {
			return f, true
		}
	}
	return Family{}, false
}

// familyForDeliverable 将交付物名称映射到数据族；MSC 的第 13 期间归入结账数据族
func familyForDeliverable(label string, period int) (string, bool) {
	folded := tabular.Fold(label)
	for _, f := range Families() {
		for _, l := range f.Labels {
			if folded == l {
				if f.Code == FamilyMSC && period == ClosingMonth {
					return FamilyMSCClosing, true
				}
				return f.Code, true
			}
		}
	}
	return "", false
}

func delivered(status string) bool {
	switch strings.ToUpper(status) {
	case "", "HO", "RE":
		return true
	}
	return false
}

// BuildAvailability 由交付记录计算各数据族的可用性；未出现在记录中的数据族为不可用
func BuildAvailability(deliveries []DeliveryRow, fiscalYear int) map[string]reconcile.AvailabilityInfo {
	present := make(map[string][]int)
	for _, d := range deliveries {
		if fiscalYear > 0 && d.Year > 0 && d.Year != fiscalYear {
			continue
		}
		if !delivered(d.Status) {
			continue
		}
		family, ok := familyForDeliverable(d.Deliverable, d.Period)
		if !ok {
			continue
		}
		present[family] = append(present[family], d.Period)
	}

	out := make(map[string]reconcile.AvailabilityInfo, len(Families()))
	for _, f := range Families() {
		var got []int
		for _, p := range present[f.Code] {
			if containsInt(f.Expected, p) {
				got = append(got, p)
			}
		}
		out[f.Code] = reconcile.NewAvailability(f.Expected, got)
	}
	return out
}

// ApplyAvailability 将可用性写入注册表
func ApplyAvailability(reg *reconcile.Registry, info map[string]reconcile.AvailabilityInfo) error {
	for _, f := range Families() {
		a, ok := info[f.Code]
		if !ok {
			continue
		}
		if err := reg.SetAvailability(f.Code, a); err != nil {
			return fmt.Errorf("设置数据族 %s 可用性失败: %w", f.Code, err)
		}
	}
	return nil
}

// Load 按数据族解码原始记录并生成数据集
func Load(family string, records []map[string]interface{}) (*tabular.Dataset, error) {
	switch family {
	case FamilyMSC, FamilyMSCClosing:
		rows, err := DecodeTrialBalance(records)
		if err != nil {
			return nil, fmt.Errorf("解析 %s 失败: %w", family, err)
		}
		return Dataset(family, TrialBalanceColumns, rows), nil
	case FamilyDCA:
		rows, err := DecodeReport(records, 1)
		if err != nil {
			return nil, fmt.Errorf("解析 %s 失败: %w", family, err)
		}
		return Dataset(family, ReportColumns, rows), nil
	case FamilyRREO, FamilyRGF:
		rows, err := DecodeReport(records, 0)
		if err != nil {
			return nil, fmt.Errorf("解析 %s 失败: %w", family, err)
		}
		return Dataset(family, ReportColumns, rows), nil
	}
	return nil, fmt.Errorf("未知的数据族: %s", family)
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
