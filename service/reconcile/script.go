/*
 * @module service/reconcile/script
 * @description 脚本规则：用 yaegi 解释执行用户提交的 Go 检查函数，编译结果按源码哈希缓存
 * @architecture 解释器模式 - 运行时加载规则
 * @documentReference DESIGN.md
 * @stateFlow 源码 -> 哈希 -> 缓存命中/编译 -> Check(data, params) -> Result
 * @rules 只开放 math、strings、sort、strconv 标准库，脚本不能做 I/O；同一编译结果串行调用；
 *        编译与每次调用都有超时，超时的解释器被停止并移出缓存
 * @dependencies github.com/traefik/yaegi
 * @refs rule.go, engine.go
 */

package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// ScriptEntry 脚本入口函数名
const ScriptEntry = "main.Check"

// DefaultScriptTimeout 脚本编译或单次调用的默认时限
const DefaultScriptTimeout = 10 * time.Second

// ErrScriptTimeout 脚本在时限内没有返回
var ErrScriptTimeout = errors.New("script timed out")

// 脚本可以导入的标准库
var allowedScriptPackages = []string{
	"math/math",
	"strings/strings",
	"sort/sort",
	"strconv/strconv",
}

// ScriptCheckFunc 脚本入口签名
type ScriptCheckFunc func(data map[string][]map[string]interface{}, params map[string]interface{}) (int, int, string)

type compiledScript struct {
	mu       sync.Mutex
	hash     string
	interp   *interp.Interpreter
	fn       ScriptCheckFunc
	compiled time.Time
	// aborted 超时后置位，之后该编译结果不再可用
	aborted atomic.Bool
}

// CompilerOption 编译器选项
type CompilerOption func(*ScriptCompiler)

// WithScriptTimeout 设置编译与单次调用的时限，<=0 时使用默认值
func WithScriptTimeout(d time.Duration) CompilerOption {
	return func(s *ScriptCompiler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// ScriptCompiler 脚本编译器，带编译缓存
type ScriptCompiler struct {
	mu      sync.RWMutex
	cache   map[string]*compiledScript
	timeout time.Duration
}

// NewScriptCompiler 创建脚本编译器
func NewScriptCompiler(opts ...CompilerOption) *ScriptCompiler {
	s := &ScriptCompiler{
		cache:   make(map[string]*compiledScript),
		timeout: DefaultScriptTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timeout 单次调用的时限
func (s *ScriptCompiler) Timeout() time.Duration {
	return s.timeout
}

var defaultCompiler = NewScriptCompiler()

func scriptSymbols() interp.Exports {
	exports := make(interp.Exports, len(allowedScriptPackages))
	for _, pkg := range allowedScriptPackages {
		if syms, ok := stdlib.Symbols[pkg]; ok {
			exports[pkg] = syms
		}
	}
	return exports
}

func hashSource(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

// Validate 校验脚本能否编译且入口签名正确
func (s *ScriptCompiler) Validate(source string) error {
	_, err := s.compile(source)
	return err
}

func (s *ScriptCompiler) get(source string) (*compiledScript, error) {
	hash := hashSource(source)
	s.mu.RLock()
	cs, ok := s.cache[hash]
	s.mu.RUnlock()
	if ok && !cs.aborted.Load() {
		return cs, nil
	}

	cs, err := s.compile(source)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[hash] = cs
	s.mu.Unlock()
	return cs, nil
}

// CacheSize 缓存的编译结果数量
func (s *ScriptCompiler) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

func (s *ScriptCompiler) compile(source string) (cs *compiledScript, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("脚本编译失败: %v", p)
		}
	}()

	i := interp.New(interp.Options{})
	if err := i.Use(scriptSymbols()); err != nil {
		return nil, fmt.Errorf("加载标准库符号失败: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := i.EvalWithContext(ctx, source); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("脚本编译失败: 初始化超过 %s: %w", s.timeout, ErrScriptTimeout)
		}
		return nil, fmt.Errorf("脚本编译失败: %w", err)
	}
	v, err := i.Eval(ScriptEntry)
	if err != nil {
		return nil, fmt.Errorf("脚本缺少 Check 函数: %w", err)
	}
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("Check 必须是函数")
	}
	fn, ok := v.Interface().(func(map[string][]map[string]interface{}, map[string]interface{}) (int, int, string))
	if !ok {
		return nil, fmt.Errorf("Check 函数签名必须是 func(map[string][]map[string]interface{}, map[string]interface{}) (int, int, string)")
	}
	return &compiledScript{hash: hashSource(source), interp: i, fn: fn, compiled: time.Now()}, nil
}

type scriptReturn struct {
	checked, failed int
	note            string
	panicked        interface{}
}

// call 在独立 goroutine 中执行脚本，超过 timeout 返回 ErrScriptTimeout 并停止解释器
func (cs *compiledScript) call(timeout time.Duration, data map[string][]map[string]interface{}, params map[string]interface{}) (int, int, string, error) {
	if cs.aborted.Load() {
		return 0, 0, "", fmt.Errorf("%w: 该脚本此前执行超时", ErrScriptTimeout)
	}
	done := make(chan scriptReturn, 1)
	go func() {
		var r scriptReturn
		defer func() {
			if p := recover(); p != nil {
				r.panicked = p
			}
			done <- r
		}()
		cs.mu.Lock()
		defer cs.mu.Unlock()
		r.checked, r.failed, r.note = cs.fn(data, params)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		if r.panicked != nil {
			return 0, 0, "", fmt.Errorf("脚本执行 panic: %v", r.panicked)
		}
		return r.checked, r.failed, r.note, nil
	case <-timer.C:
		cs.abort()
		return 0, 0, "", fmt.Errorf("%w after %s", ErrScriptTimeout, timeout)
	}
}

// abort 停止解释器中仍在运行的调用。yaegi 只在 EvalWithContext 取消时推进运行编号，
// 运行中的循环发现编号变化后退出；这里用一个阻塞的接收语句触发这次取消。
func (cs *compiledScript) abort() {
	if !cs.aborted.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = cs.interp.EvalWithContext(ctx, "<-make(chan int)")
}

func (s *ScriptCompiler) evict(cs *compiledScript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.cache[cs.hash]; ok && cur == cs {
		delete(s.cache, cs.hash)
	}
}

// ValidateScript 使用默认编译器校验脚本
func ValidateScript(source string) error {
	return defaultCompiler.Validate(source)
}

// ScriptDefinition 脚本规则定义
type ScriptDefinition struct {
	Code        string
	Description string
	Source      string
	// Datasets 传入脚本的数据集名称
	Datasets []string
	// Requires 规则所需的数据族
	Requires []string
	Scoring  Scoring
}

// NewScriptRule 编译脚本并构造规则。编译错误在构造时返回，不会推迟到执行阶段。
func NewScriptRule(def ScriptDefinition) (Rule, error) {
	return defaultCompiler.Rule(def)
}

// Rule 用本编译器构造脚本规则
func (s *ScriptCompiler) Rule(def ScriptDefinition) (Rule, error) {
	if def.Code == "" {
		return Rule{}, fmt.Errorf("脚本规则编码不能为空")
	}
	cs, err := s.get(def.Source)
	if err != nil {
		return Rule{}, fmt.Errorf("脚本规则 %s: %w", def.Code, err)
	}
	datasets := append([]string(nil), def.Datasets...)
	return Rule{
		Code:        def.Code,
		Description: def.Description,
		Scoring:     def.Scoring,
		Requires:    append([]string(nil), def.Requires...),
		Check: func(rc *RuleContext) (Result, error) {
			data := make(map[string][]map[string]interface{}, len(datasets))
			for _, name := range datasets {
				ds, err := rc.Dataset(name)
				if err != nil {
					return Result{}, err
				}
				data[name] = ds.Records()
			}
			p := rc.Params()
			params := map[string]interface{}{
				"fiscal_year":        p.FiscalYear,
				"entity_type":        string(p.EntityType),
				"reference_period":   p.ReferencePeriod,
				"primary_tolerance":  rc.Tolerance().Primary,
				"rounding_tolerance": rc.Tolerance().Rounding,
			}

			checked, failed, note, err := cs.call(s.timeout, data, params)
			if err != nil {
				if errors.Is(err, ErrScriptTimeout) {
					s.evict(cs)
				}
				return Result{}, err
			}
			if checked < 0 || failed < 0 {
				return Result{}, fmt.Errorf("脚本返回了负的计数: checked=%d failed=%d", checked, failed)
			}
			if checked == 0 {
				return NotApplicable(note), nil
			}
			return Result{Checked: checked, Failed: failed, Note: note}, nil
		},
	}, nil
}
