package guardrails

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockValidator 用于测试的模拟验证器
type mockValidator struct {
	name      string
	priority  int
	valid     bool
	tripwire  bool
	err       error
	execOrder *[]string
}

func (m *mockValidator) Name() string  { return m.name }
func (m *mockValidator) Priority() int { return m.priority }

func (m *mockValidator) Validate(ctx context.Context, content string) (*ValidationResult, error) {
	if m.execOrder != nil {
		*m.execOrder = append(*m.execOrder, m.name)
	}
	if m.err != nil {
		return nil, m.err
	}
	result := NewValidationResult()
	result.Tripwire = m.tripwire
	if !m.valid {
		result.AddError(ValidationError{Code: "MOCK_ERROR", Message: m.name, Severity: SeverityMedium})
	}
	return result, nil
}

func TestValidatorChain_PriorityOrder(t *testing.T) {
	var order []string
	chain := NewValidatorChain(ChainModeCollectAll,
		&mockValidator{name: "c", priority: 30, valid: true, execOrder: &order},
		&mockValidator{name: "a", priority: 10, valid: true, execOrder: &order},
		&mockValidator{name: "b", priority: 20, valid: false, execOrder: &order},
	)

	result, err := chain.Validate(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, []string{"a", "b", "c"}, result.Metadata["validators_executed"])
}

func TestValidatorChain_FailFast(t *testing.T) {
	var order []string
	chain := NewValidatorChain(ChainModeFailFast,
		&mockValidator{name: "a", priority: 1, valid: false, execOrder: &order},
		&mockValidator{name: "b", priority: 2, valid: true, execOrder: &order},
	)
	result, err := chain.Validate(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"a"}, order)
}

func TestValidatorChain_ValidatorError(t *testing.T) {
	chain := NewValidatorChain(ChainModeCollectAll,
		&mockValidator{name: "broken", priority: 1, err: errors.New("boom")},
		&mockValidator{name: "ok", priority: 2, valid: true},
	)
	result, err := chain.Validate(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, result.HasCode(ErrCodeValidationFailed))
}

func TestValidatorChain_Tripwire(t *testing.T) {
	chain := NewValidatorChain(ChainModeCollectAll,
		&mockValidator{name: "trip", priority: 1, valid: false, tripwire: true},
		&mockValidator{name: "after", priority: 2, valid: true},
	)
	_, err := chain.Validate(context.Background(), "x")
	var tw *TripwireError
	require.ErrorAs(t, err, &tw)
	assert.Equal(t, "trip", tw.ValidatorName)
}

func TestValidatorChain_ParallelWithDetectors(t *testing.T) {
	chain := NewValidatorChain(ChainModeParallel,
		NewInjectionDetector(nil),
		NewPIIDetector(nil),
		NewLengthValidator(1000),
	)
	assert.Equal(t, 3, chain.Len())

	result, err := chain.Validate(context.Background(), overridePhrase+" jane@example.com")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, result.HasCode(ErrCodeInjectionDetected))
	assert.Equal(t, true, result.Metadata["pii_detected"])
	assert.Len(t, result.Metadata["validators_executed"], 3)
}

func TestValidatorChain_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chain := NewValidatorChain(ChainModeCollectAll, &mockValidator{name: "a", valid: true})
	_, err := chain.Validate(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLengthValidator(t *testing.T) {
	v := NewLengthValidator(3)
	result, err := v.Validate(context.Background(), "你好世")
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = v.Validate(context.Background(), "abcd")
	require.NoError(t, err)
	assert.True(t, result.HasCode(ErrCodeMaxLengthExceeded))
}
