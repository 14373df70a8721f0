package guardrails

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ChainMode 验证器链执行模式
type ChainMode string

const (
	// ChainModeFailFast 快速失败模式：遇到第一个失败立即停止
	ChainModeFailFast ChainMode = "fail_fast"
	// ChainModeCollectAll 收集全部模式：按优先级执行所有验证器
	ChainModeCollectAll ChainMode = "collect_all"
	// ChainModeParallel 并行模式：并行执行所有验证器并收集结果
	ChainModeParallel ChainMode = "parallel"
)

// ValidatorChain 验证器链
// 按优先级顺序（或并行）执行多个验证器并聚合结果
type ValidatorChain struct {
	validators []Validator
	mode       ChainMode
	mu         sync.RWMutex
}

// NewValidatorChain 创建验证器链
func NewValidatorChain(mode ChainMode, validators ...Validator) *ValidatorChain {
	if mode == "" {
		mode = ChainModeCollectAll
	}
	c := &ValidatorChain{mode: mode}
	c.Add(validators...)
	return c
}

// Name 返回验证器链名称
func (c *ValidatorChain) Name() string {
	return "validator_chain"
}

// Priority 链本身优先级最高
func (c *ValidatorChain) Priority() int {
	return 0
}

// Add 添加验证器到链中
func (c *ValidatorChain) Add(validators ...Validator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range validators {
		if v != nil {
			c.validators = append(c.validators, v)
		}
	}
}

// Len 返回验证器数量
func (c *ValidatorChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.validators)
}

// Validators 返回按优先级排序的验证器列表
func (c *ValidatorChain) Validators() []Validator {
	c.mu.RLock()
	sorted := make([]Validator, len(c.validators))
	copy(sorted, c.validators)
	c.mu.RUnlock()
	sortValidatorsByPriority(sorted)
	return sorted
}

// Validate 执行验证器链
// 实现 Validator 接口
func (c *ValidatorChain) Validate(ctx context.Context, content string) (*ValidationResult, error) {
	validators := c.Validators()

	c.mu.RLock()
	mode := c.mode
	c.mu.RUnlock()

	if mode == ChainModeParallel {
		return c.validateParallel(ctx, validators, content)
	}

	result := NewValidationResult()
	executed := make([]string, 0, len(validators))

	for _, v := range validators {
		if err := ctx.Err(); err != nil {
			result.AddError(ValidationError{
				Code:     ErrCodeValidationFailed,
				Message:  "validation cancelled: " + err.Error(),
				Severity: SeverityMedium,
			})
			return result, err
		}

		vResult, err := v.Validate(ctx, content)
		if err != nil {
			result.AddError(ValidationError{
				Code:     ErrCodeValidationFailed,
				Message:  "validator " + v.Name() + " failed: " + err.Error(),
				Severity: SeverityCritical,
			})
			if mode == ChainModeFailFast {
				return result, err
			}
			continue
		}
		executed = append(executed, v.Name())
		result.Merge(vResult)

		if vResult.Tripwire {
			result.Metadata["validators_executed"] = executed
			return result, &TripwireError{ValidatorName: v.Name(), Result: result}
		}
		if mode == ChainModeFailFast && !vResult.Valid {
			break
		}
	}

	result.Metadata["validators_executed"] = executed
	return result, nil
}

// validateParallel 并行执行所有验证器；任一验证器触发 Tripwire 时取消其余验证器。
func (c *ValidatorChain) validateParallel(ctx context.Context, validators []Validator, content string) (*ValidationResult, error) {
	type validatorResult struct {
		name   string
		result *ValidationResult
		err    error
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]validatorResult, len(validators))
	g, gctx := errgroup.WithContext(ctx)

	var tripwireOnce sync.Once
	var tripwireName string

	for i, v := range validators {
		g.Go(func() error {
			vResult, err := v.Validate(gctx, content)
			results[i] = validatorResult{name: v.Name(), result: vResult, err: err}
			if err == nil && vResult != nil && vResult.Tripwire {
				tripwireOnce.Do(func() {
					tripwireName = v.Name()
					cancel()
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	result := NewValidationResult()
	executed := make([]string, 0, len(validators))
	for _, vr := range results {
		if vr.err != nil {
			result.AddError(ValidationError{
				Code:     ErrCodeValidationFailed,
				Message:  "validator " + vr.name + " failed: " + vr.err.Error(),
				Severity: SeverityCritical,
			})
			continue
		}
		if vr.result == nil {
			continue
		}
		executed = append(executed, vr.name)
		result.Merge(vr.result)
	}
	result.Metadata["validators_executed"] = executed

	if tripwireName != "" {
		return result, &TripwireError{ValidatorName: tripwireName, Result: result}
	}
	return result, nil
}

// sortValidatorsByPriority 按优先级排序验证器（数字越小优先级越高）
func sortValidatorsByPriority(validators []Validator) {
	sort.SliceStable(validators, func(i, j int) bool {
		return validators[i].Priority() < validators[j].Priority()
	})
}
