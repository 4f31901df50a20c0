package runloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/camel/internal/llmprovider"
	"github.com/openclaw/camel/internal/value"
)

func TestSanitizeConfigDefaultsEvalModeToStrict(t *testing.T) {
	cfg := sanitizeConfig(Config{})
	assert.Equal(t, "strict", cfg.EvalMode)
}

func TestSanitizeConfigPreservesExplicitEvalMode(t *testing.T) {
	cfg := sanitizeConfig(Config{EvalMode: "normal"})
	assert.Equal(t, "normal", cfg.EvalMode)
}

func TestSanitizeConfigClampsMaxPlanRetriesAboveCeiling(t *testing.T) {
	cfg := sanitizeConfig(Config{MaxPlanRetries: 999})
	assert.Equal(t, DefaultMaxPlanRetries, cfg.MaxPlanRetries)
}

func TestSanitizeConfigClampsMaxPlanRetriesBelowOne(t *testing.T) {
	cfg := sanitizeConfig(Config{MaxPlanRetries: -3})
	assert.Equal(t, 1, cfg.MaxPlanRetries)
}

func TestSanitizeConfigDefaultsMaxPlanRetriesWhenZero(t *testing.T) {
	cfg := sanitizeConfig(Config{})
	assert.Equal(t, DefaultMaxPlanRetries, cfg.MaxPlanRetries)
}

func TestSanitizeConfigDefaultsLoggerWhenNil(t *testing.T) {
	cfg := sanitizeConfig(Config{})
	assert.NotNil(t, cfg.Logger)
}

func TestSanitizeConfigReusesPlannerForExtractorAndReplierWhenNil(t *testing.T) {
	planner := &fakeTestProvider{name: "planner"}
	cfg := sanitizeConfig(Config{Planner: planner})
	assert.Same(t, planner, cfg.Extractor)
	assert.Same(t, planner, cfg.FinalReplier)
}

func TestSanitizeConfigKeepsExplicitExtractorAndReplier(t *testing.T) {
	planner := &fakeTestProvider{name: "planner"}
	extractor := &fakeTestProvider{name: "extractor"}
	replier := &fakeTestProvider{name: "replier"}
	cfg := sanitizeConfig(Config{Planner: planner, Extractor: extractor, FinalReplier: replier})
	assert.Same(t, extractor, cfg.Extractor)
	assert.Same(t, replier, cfg.FinalReplier)
}

func TestMaxPlanRetriesFromEnvDefaultsWhenUnset(t *testing.T) {
	t.Setenv(MaxPlanRetriesEnvVar, "")
	assert.Equal(t, DefaultMaxPlanRetries, maxPlanRetriesFromEnv())
}

func TestMaxPlanRetriesFromEnvParsesValidValue(t *testing.T) {
	t.Setenv(MaxPlanRetriesEnvVar, "3")
	assert.Equal(t, 3, maxPlanRetriesFromEnv())
}

func TestMaxPlanRetriesFromEnvClampsInvalidAndOutOfRangeValues(t *testing.T) {
	t.Setenv(MaxPlanRetriesEnvVar, "not-a-number")
	assert.Equal(t, DefaultMaxPlanRetries, maxPlanRetriesFromEnv())

	t.Setenv(MaxPlanRetriesEnvVar, "0")
	assert.Equal(t, 1, maxPlanRetriesFromEnv())

	t.Setenv(MaxPlanRetriesEnvVar, "999")
	assert.Equal(t, DefaultMaxPlanRetries, maxPlanRetriesFromEnv())
}

func TestValueToAnyConvertsScalarsAndContainers(t *testing.T) {
	assert.Nil(t, valueToAny(value.Null))
	assert.Equal(t, true, valueToAny(value.Bool(true)))
	assert.Equal(t, int64(5), valueToAny(value.Int(5)))
	assert.Equal(t, "hi", valueToAny(value.String("hi")))

	list := valueToAny(value.List([]value.Value{value.Int(1), value.Int(2)}))
	assert.Equal(t, []any{int64(1), int64(2)}, list)

	dict := valueToAny(value.Dict(value.DictPair{Key: "a", Value: value.Int(1)}))
	assert.Equal(t, map[string]any{"a": int64(1)}, dict)
}

func TestAnyToValueLiftsPlainGoValues(t *testing.T) {
	require.Equal(t, value.KindNull, anyToValue(nil).Kind())
	require.Equal(t, value.KindBool, anyToValue(true).Kind())
	require.Equal(t, value.KindFloat, anyToValue(3.5).Kind())
	require.Equal(t, value.KindInt, anyToValue(int64(3)).Kind())
	require.Equal(t, value.KindString, anyToValue("x").Kind())

	list := anyToValue([]any{"a", "b"})
	items, ok := list.AsList()
	require.True(t, ok)
	assert.Len(t, items, 2)

	dict := anyToValue(map[string]any{"k": "v"})
	v, ok := dict.DictGet("k")
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "v", s)
}

func TestValueToAnyThenAnyToValueRoundTripsLists(t *testing.T) {
	orig := value.List([]value.Value{value.Int(1), value.String("x")})
	back := anyToValue(valueToAny(orig))
	items, ok := back.AsList()
	require.True(t, ok)
	require.Len(t, items, 2)
	i, _ := items[0].AsInt()
	assert.Equal(t, int64(1), i)
}

func TestToolArgsToPlainFlattensBoundValues(t *testing.T) {
	args := map[string]value.Bound{
		"name": {Value: value.String("alice"), Cap: value.Trust(value.SourceUser)},
	}
	out := toolArgsToPlain(args)
	assert.Equal(t, "alice", out["name"])
}

func TestRecordPlanAttemptIsANoOpWithoutMetrics(t *testing.T) {
	assert.NotPanics(t, func() { recordPlanAttempt(Config{}, true) })
	assert.NotPanics(t, func() { recordPlanAttempt(Config{}, false) })
}

type fakeTestProvider struct{ name string }

func (f *fakeTestProvider) Name() string { return f.name }

func (f *fakeTestProvider) Complete(ctx context.Context, req llmprovider.Request) (llmprovider.Response, error) {
	return llmprovider.Response{}, nil
}
