package analysis

import (
	"context"
	"testing"

	"siconfi-service/service/reconcile"
	"siconfi-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newScriptRuleService(t *testing.T) *ScriptRuleService {
	t.Helper()
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	return NewScriptRuleService(db.DB, reconcile.NewScriptCompiler())
}

func TestScriptRuleCreateAndList(t *testing.T) {
	s := newScriptRuleService(t)
	ctx := context.Background()

	rule, err := s.Create(ctx, &ScriptRuleRequest{
		Code:     "DX_00020",
		Source:   rowCountScript,
		Datasets: []string{"msc"},
		Requires: []string{"msc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "per_period", rule.Scoring)
	assert.True(t, rule.IsEnabled)

	_, err = s.Create(ctx, &ScriptRuleRequest{Code: "DX_00010", Source: rowCountScript, Scoring: "single_shot"})
	require.NoError(t, err)

	rules, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "DX_00010", rules[0].Code)
	assert.Equal(t, "single_shot", rules[0].Scoring)
}

func TestScriptRuleCreateRejects(t *testing.T) {
	s := newScriptRuleService(t)
	ctx := context.Background()
	_, err := s.Create(ctx, &ScriptRuleRequest{Code: "DX_00010", Source: rowCountScript})
	require.NoError(t, err)

	cases := []struct {
		name string
		req  ScriptRuleRequest
		want error
	}{
		{"duplicate", ScriptRuleRequest{Code: "DX_00010", Source: rowCountScript}, ErrScriptRuleExists},
		{"builtin code", ScriptRuleRequest{Code: "D1_00020", Source: rowCountScript}, ErrScriptRuleExists},
		{"empty code", ScriptRuleRequest{Source: rowCountScript}, ErrInvalidRequest},
		{"unknown family", ScriptRuleRequest{Code: "DX_00030", Source: rowCountScript, Datasets: []string{"siafi"}}, ErrInvalidRequest},
		{"bad scoring", ScriptRuleRequest{Code: "DX_00030", Source: rowCountScript, Scoring: "weekly"}, ErrInvalidRequest},
		{"syntax error", ScriptRuleRequest{Code: "DX_00030", Source: "package main\nfunc Check("}, ErrInvalidRequest},
		{"empty source", ScriptRuleRequest{Code: "DX_00030"}, ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			_, err := s.Create(ctx, &req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestScriptRuleSetEnabled(t *testing.T) {
	s := newScriptRuleService(t)
	ctx := context.Background()
	_, err := s.Create(ctx, &ScriptRuleRequest{Code: "DX_00010", Source: rowCountScript})
	require.NoError(t, err)

	require.NoError(t, s.SetEnabled(ctx, "DX_00010", false))
	rules, err := s.List(ctx)
	require.NoError(t, err)
	assert.False(t, rules[0].IsEnabled)

	assert.ErrorIs(t, s.SetEnabled(ctx, "DX_99999", true), gorm.ErrRecordNotFound)
}
