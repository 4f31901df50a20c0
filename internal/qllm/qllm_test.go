package qllm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/camel/internal/ir"
	"github.com/openclaw/camel/internal/llmprovider"
)

type stubProvider struct {
	responses []string
	calls     int
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, req llmprovider.Request) (llmprovider.Response, error) {
	resp := s.responses[s.calls]
	s.calls++
	return llmprovider.Response{Text: resp}, nil
}

func emailSchema() ir.Schema {
	return ir.Schema{
		Fields: map[string]*ir.FieldSpec{
			"address": {Type: ir.FieldEmail, Required: true},
		},
		FieldOrder: []string{"address"},
	}
}

func TestRunSucceedsFirstAttempt(t *testing.T) {
	p := &stubProvider{responses: []string{
		`{"have_enough_information": true, "address": "a@example.com"}`,
	}}
	x := New(p, "test-model")
	v, err := x.Run(context.Background(), "extract email", "contact a@example.com", emailSchema())
	require.NoError(t, err)
	addr, _ := v.DictGet("address")
	s, _ := addr.AsString()
	assert.Equal(t, "a@example.com", s)
	assert.Equal(t, 1, p.calls)
}

func TestRunRetriesOnInsufficientInformation(t *testing.T) {
	p := &stubProvider{responses: []string{
		`{"have_enough_information": false, "reason": "no email visible yet"}`,
		`{"have_enough_information": true, "address": "b@example.com"}`,
	}}
	x := New(p, "test-model")
	v, err := x.Run(context.Background(), "extract email", "text", emailSchema())
	require.NoError(t, err)
	addr, _ := v.DictGet("address")
	s, _ := addr.AsString()
	assert.Equal(t, "b@example.com", s)
	assert.Equal(t, 2, p.calls)
}

func TestRunRetriesOnSchemaMismatchThenSucceeds(t *testing.T) {
	p := &stubProvider{responses: []string{
		`{"have_enough_information": true, "address": "not-an-email"}`,
		`{"have_enough_information": true, "address": "c@example.com"}`,
	}}
	x := New(p, "test-model")
	v, err := x.Run(context.Background(), "extract email", "text", emailSchema())
	require.NoError(t, err)
	addr, _ := v.DictGet("address")
	s, _ := addr.AsString()
	assert.Equal(t, "c@example.com", s)
	assert.Equal(t, 2, p.calls)
}

func TestRunExhaustsAttemptsOnPersistentSchemaMismatch(t *testing.T) {
	responses := make([]string, MaxAttempts)
	for i := range responses {
		responses[i] = `{"have_enough_information": true, "address": "not-an-email"}`
	}
	p := &stubProvider{responses: responses}
	x := New(p, "test-model")
	_, err := x.Run(context.Background(), "extract email", "text", emailSchema())
	require.Error(t, err)
	assert.Equal(t, MaxAttempts, p.calls)
}

func TestRunExhaustsAttempts(t *testing.T) {
	responses := make([]string, MaxAttempts)
	for i := range responses {
		responses[i] = `{"have_enough_information": false, "reason": "still nothing"}`
	}
	p := &stubProvider{responses: responses}
	x := New(p, "test-model")
	_, err := x.Run(context.Background(), "extract email", "text", emailSchema())
	require.Error(t, err)
	assert.Equal(t, MaxAttempts, p.calls)
}

func ageAndActiveSchema() ir.Schema {
	return ir.Schema{
		Fields: map[string]*ir.FieldSpec{
			"age":    {Type: ir.FieldString, Required: true},
			"active": {Type: ir.FieldBoolean, Required: true},
		},
		FieldOrder: []string{"age", "active"},
	}
}

func TestRunCoercesStringFieldViaDisplayText(t *testing.T) {
	p := &stubProvider{responses: []string{
		`{"have_enough_information": true, "age": 42, "active": true}`,
	}}
	x := New(p, "test-model")
	v, err := x.Run(context.Background(), "extract profile", "text", ageAndActiveSchema())
	require.NoError(t, err)
	age, _ := v.DictGet("age")
	s, _ := age.AsString()
	assert.Equal(t, "42", s)
}

func TestRunCoercesBooleanFromStringAndNumber(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want bool
	}{
		{`"TRUE"`, true},
		{`"false"`, false},
		{`1`, true},
		{`0`, false},
	} {
		p := &stubProvider{responses: []string{
			`{"have_enough_information": true, "age": "30", "active": ` + tc.raw + `}`,
		}}
		x := New(p, "test-model")
		v, err := x.Run(context.Background(), "extract profile", "text", ageAndActiveSchema())
		require.NoError(t, err)
		active, _ := v.DictGet("active")
		b, _ := active.AsBool()
		assert.Equal(t, tc.want, b, "raw=%s", tc.raw)
	}
}
