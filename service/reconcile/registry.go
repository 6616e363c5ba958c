/*
 * @module service/reconcile/registry
 * @description 数据集注册表与可用性信息，一次分析运行的只读输入
 * @architecture 注册表模式
 * @documentReference DESIGN.md
 * @stateFlow 加载阶段写入 -> Seal -> 评估阶段只读
 * @rules Seal 之后任何写入都返回 ErrRegistrySealed；规则只能拿到数据集副本
 * @dependencies siconfi-service/service/tabular
 * @refs rule.go, gate.go
 */

package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"siconfi-service/service/tabular"
)

var (
	// ErrRegistrySealed 注册表已封存
	ErrRegistrySealed = errors.New("注册表已封存，不能再写入")
	// ErrDatasetMissing 数据集未注册
	ErrDatasetMissing = errors.New("数据集不存在")
)

// AvailabilityInfo 某一数据族的交付情况
type AvailabilityInfo struct {
	Available      bool   `json:"available"`       // 至少交付一个期间
	Complete       bool   `json:"complete"`        // 所有预期期间均已交付
	PeriodsPresent []int  `json:"periods_present"` // 已交付期间
	Expected       []int  `json:"expected"`        // 预期期间
	Message        string `json:"message"`
}

// NewAvailability 根据预期期间和已交付期间计算可用性
func NewAvailability(expected, present []int) AvailabilityInfo {
	exp := sortedUnique(expected)
	got := sortedUnique(present)

	have := make(map[int]bool, len(got))
	for _, p := range got {
		have[p] = true
	}
	var missing []int
	for _, p := range exp {
		if !have[p] {
			missing = append(missing, p)
		}
	}

	info := AvailabilityInfo{
		Available:      len(got) > 0,
		Complete:       len(got) > 0 && len(missing) == 0,
		PeriodsPresent: got,
		Expected:       exp,
	}
	switch {
	case !info.Available:
		info.Message = "no period delivered"
	case info.Complete:
		info.Message = fmt.Sprintf("all %d expected periods delivered", len(exp))
	default:
		info.Message = fmt.Sprintf("%d of %d expected periods delivered, missing %v", len(exp)-len(missing), len(exp), missing)
	}
	return info
}

func sortedUnique(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

// Registry 数据集注册表
type Registry struct {
	mu           sync.RWMutex
	datasets     map[string]*tabular.Dataset
	availability map[string]AvailabilityInfo
	sealed       bool
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		datasets:     make(map[string]*tabular.Dataset),
		availability: make(map[string]AvailabilityInfo),
	}
}

// RegisterDataset 注册数据集，注册表保存一份副本
func (r *Registry) RegisterDataset(name string, data *tabular.Dataset) error {
	if data == nil {
		return fmt.Errorf("数据集 %s 为空", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrRegistrySealed
	}
	r.datasets[name] = data.WithName(name)
	return nil
}

// SetAvailability 声明数据族的交付情况
func (r *Registry) SetAvailability(family string, info AvailabilityInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrRegistrySealed
	}
	info.PeriodsPresent = sortedUnique(info.PeriodsPresent)
	info.Expected = sortedUnique(info.Expected)
	r.availability[family] = info
	return nil
}

// Seal 封存注册表，加载阶段与评估阶段之间的屏障，可重复调用
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed 是否已封存
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Dataset 返回已注册数据集的副本
func (r *Registry) Dataset(name string) (*tabular.Dataset, error) {
	r.mu.RLock()
	ds, ok := r.datasets[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDatasetMissing, name)
	}
	return ds.Clone(), nil
}

// HasDataset 是否已注册
func (r *Registry) HasDataset(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.datasets[name]
	return ok
}

// Availability 数据族的可用性，未声明的数据族返回 ok=false
func (r *Registry) Availability(family string) (AvailabilityInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.availability[family]
	if !ok {
		return AvailabilityInfo{Message: "availability not declared"}, false
	}
	info.PeriodsPresent = append([]int(nil), info.PeriodsPresent...)
	info.Expected = append([]int(nil), info.Expected...)
	return info, true
}

// DatasetNames 已注册数据集名称（排序）
func (r *Registry) DatasetNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.datasets))
	for n := range r.datasets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Families 已声明数据族名称（排序）
func (r *Registry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.availability))
	for n := range r.availability {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AnalysisContext 一次分析运行的显式上下文
type AnalysisContext struct {
	Registry *Registry
	Params   Params
}

// NewAnalysisContext 创建分析上下文
func NewAnalysisContext(reg *Registry, params Params) *AnalysisContext {
	return &AnalysisContext{Registry: reg, Params: params}
}
