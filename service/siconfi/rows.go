/*
 * @module service/siconfi/rows
 * @description SICONFI 各数据族的强类型行定义，及与通用表格行之间的转换
 * @architecture 值对象 + 适配器
 * @documentReference DESIGN.md
 * @stateFlow 原始记录 -> 类型化行(校验) -> tabular.Dataset
 * @rules 规则代码只通过列常量访问列名；解码失败时返回带行号的错误
 * @dependencies github.com/spf13/cast, siconfi-service/service/tabular
 * @refs families.go, catalogue.go
 */

package siconfi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"siconfi-service/service/tabular"
)

// 矩阵（MSC）列
const (
	ColAccount   = "conta_contabil"
	ColMonth     = "mes_referencia"
	ColValueType = "tipo_valor"
	ColNature    = "natureza_conta"
	ColValue     = "valor"
)

// 报表（DCA/RREO/RGF）列
const (
	ColAnnex       = "anexo"
	ColAccountCode = "cod_conta"
	ColLabel       = "conta"
	ColColumn      = "coluna"
	ColPeriod      = "periodo"
)

// 交付记录列
const (
	ColDeliverable = "entregavel"
	ColYear        = "exercicio"
	ColStatus      = "status_relatorio"
)

// 派生列
const (
	ColClass     = "classe"
	ColBimester  = "bimestre"
	ColQuarter   = "quadrimestre"
	ColNextMonth = "mes_seguinte"
)

// 矩阵取值类型
const (
	BeginningBalance = "beginning_balance"
	PeriodChange     = "period_change"
	EndingBalance    = "ending_balance"
)

// 科目余额方向
const (
	Debit  = "D"
	Credit = "C"
)

// TrialBalanceRow 矩阵（MSC）一行
type TrialBalanceRow struct {
	Account   string  `json:"conta_contabil"`
	Month     int     `json:"mes_referencia"`
	ValueType string  `json:"tipo_valor"`
	Nature    string  `json:"natureza_conta"`
	Value     float64 `json:"valor"`
}

// TrialBalanceColumns 矩阵列顺序
var TrialBalanceColumns = []string{ColAccount, ColMonth, ColValueType, ColNature, ColValue}

// Row 转换为表格行
func (r TrialBalanceRow) Row() tabular.Row {
	return tabular.Row{
		ColAccount:   r.Account,
		ColMonth:     r.Month,
		ColValueType: r.ValueType,
		ColNature:    r.Nature,
		ColValue:     r.Value,
	}
}

// ReportRow DCA/RREO/RGF 报表的共同形态：附表 + 科目 + 列 + 期间
type ReportRow struct {
	Annex       string  `json:"anexo"`
	AccountCode string  `json:"cod_conta"`
	Label       string  `json:"conta"`
	Column      string  `json:"coluna"`
	Period      int     `json:"periodo"`
	Value       float64 `json:"valor"`
}

// AnnualStatementRow 年度报表（DCA）一行，期间固定为 1
type AnnualStatementRow ReportRow

// BudgetExecutionRow 预算执行报告（RREO）一行，期间为双月
type BudgetExecutionRow ReportRow

// FiscalReportRow 财政管理报告（RGF）一行，期间为四月期
type FiscalReportRow ReportRow

// ReportColumns 报表列顺序
var ReportColumns = []string{ColAnnex, ColAccountCode, ColLabel, ColColumn, ColPeriod, ColValue}

// Row 转换为表格行
func (r ReportRow) Row() tabular.Row {
	return tabular.Row{
		ColAnnex:       r.Annex,
		ColAccountCode: r.AccountCode,
		ColLabel:       r.Label,
		ColColumn:      r.Column,
		ColPeriod:      r.Period,
		ColValue:       r.Value,
	}
}

// Row 转换为表格行
func (r AnnualStatementRow) Row() tabular.Row { return ReportRow(r).Row() }

// Row 转换为表格行
func (r BudgetExecutionRow) Row() tabular.Row { return ReportRow(r).Row() }

// Row 转换为表格行
func (r FiscalReportRow) Row() tabular.Row { return ReportRow(r).Row() }

// DeliveryRow 交付记录（extrato de entregas）一行
type DeliveryRow struct {
	Deliverable string `json:"entregavel"`
	Year        int    `json:"exercicio"`
	Period      int    `json:"periodo"`
	Status      string `json:"status_relatorio"`
}

// DeliveryColumns 交付记录列顺序
var DeliveryColumns = []string{ColDeliverable, ColYear, ColPeriod, ColStatus}

// Row 转换为表格行
func (r DeliveryRow) Row() tabular.Row {
	return tabular.Row{
		ColDeliverable: r.Deliverable,
		ColYear:        r.Year,
		ColPeriod:      r.Period,
		ColStatus:      r.Status,
	}
}

type rower interface {
	Row() tabular.Row
}

// Dataset 将类型化行转换为数据集
func Dataset[T rower](name string, columns []string, rows []T) *tabular.Dataset {
	out := make([]tabular.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Row()
	}
	return tabular.New(name, columns, out)
}

// DecodeTrialBalance 解码并校验矩阵记录
func DecodeTrialBalance(records []map[string]interface{}) ([]TrialBalanceRow, error) {
	out := make([]TrialBalanceRow, 0, len(records))
	for i, rec := range records {
		month, err := intValue(rec[ColMonth])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行 %s 无效: %w", i+1, ColMonth, err)
		}
		value, err := cast.ToFloat64E(nullAsZero(rec[ColValue]))
		if err != nil {
			return nil, fmt.Errorf("第 %d 行 %s 无效: %w", i+1, ColValue, err)
		}
		row := TrialBalanceRow{
			Account:   strings.TrimSpace(cast.ToString(rec[ColAccount])),
			Month:     month,
			ValueType: strings.TrimSpace(cast.ToString(rec[ColValueType])),
			Nature:    strings.ToUpper(strings.TrimSpace(cast.ToString(rec[ColNature]))),
			Value:     value,
		}
		if row.Account == "" {
			return nil, fmt.Errorf("第 %d 行缺少 %s", i+1, ColAccount)
		}
		if month < 1 || month > 13 {
			return nil, fmt.Errorf("第 %d 行月份超出范围: %d", i+1, month)
		}
		out = append(out, row)
	}
	return out, nil
}

// DecodeReport 解码并校验报表记录；defaultPeriod 用于没有期间列的报表（DCA）
func DecodeReport(records []map[string]interface{}, defaultPeriod int) ([]ReportRow, error) {
	out := make([]ReportRow, 0, len(records))
	for i, rec := range records {
		period := defaultPeriod
		if v, ok := rec[ColPeriod]; ok && !tabular.NullValue(v) {
			p, err := intValue(v)
			if err != nil {
				return nil, fmt.Errorf("第 %d 行 %s 无效: %w", i+1, ColPeriod, err)
			}
			period = p
		}
		value, err := cast.ToFloat64E(nullAsZero(rec[ColValue]))
		if err != nil {
			return nil, fmt.Errorf("第 %d 行 %s 无效: %w", i+1, ColValue, err)
		}
		out = append(out, ReportRow{
			Annex:       strings.TrimSpace(cast.ToString(rec[ColAnnex])),
			AccountCode: strings.TrimSpace(cast.ToString(rec[ColAccountCode])),
			Label:       strings.TrimSpace(cast.ToString(rec[ColLabel])),
			Column:      strings.TrimSpace(cast.ToString(rec[ColColumn])),
			Period:      period,
			Value:       value,
		})
	}
	return out, nil
}

// DecodeDeliveries 解码交付记录
func DecodeDeliveries(records []map[string]interface{}) ([]DeliveryRow, error) {
	out := make([]DeliveryRow, 0, len(records))
	for i, rec := range records {
		period, err := intValue(rec[ColPeriod])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行 %s 无效: %w", i+1, ColPeriod, err)
		}
		out = append(out, DeliveryRow{
			Deliverable: strings.TrimSpace(cast.ToString(rec[ColDeliverable])),
			Year:        cast.ToInt(nullAsZero(rec[ColYear])),
			Period:      period,
			Status:      strings.ToUpper(strings.TrimSpace(cast.ToString(rec[ColStatus]))),
		})
	}
	return out, nil
}

// intValue 期间可能以 "08" 这样的字符串出现，按十进制解析
func intValue(v interface{}) (int, error) {
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, err
		}
		return int(f), nil
	}
	return cast.ToIntE(v)
}

func nullAsZero(v interface{}) interface{} {
	if tabular.NullValue(v) {
		return 0
	}
	return v
}

// AccountClass 科目类别：科目编码中的第一个数字，DCA 编码如 "P1.1.0.0.0.00.00" 同样适用
func AccountClass(code string) int {
	for _, c := range code {
		if c >= '0' && c <= '9' {
			return int(c - '0')
		}
	}
	return 0
}
