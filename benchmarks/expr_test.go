package benchmarks

import (
	"testing"

	"github.com/randalmurphal/flowline/pkg/flowline/expr"
	"github.com/randalmurphal/flowline/pkg/flowline/template"
)

func BenchmarkCondition_Eval(b *testing.B) {
	cond := expr.MustCompile("payload.amount >= 100 and (region == 'eu' or vip) and not blocked")
	vars := expr.Vars(map[string]any{
		"payload": map[string]any{"amount": 250},
		"region":  "eu",
		"vip":     false,
		"blocked": false,
	})
	b.ReportAllocs()
	for b.Loop() {
		_ = cond.Eval(vars)
	}
}

func BenchmarkTemplate_Render(b *testing.B) {
	t := template.MustParse("order ${payload.id} for ${customer:-guest} in ${region}")
	vars := template.Map(map[string]any{
		"payload": map[string]any{"id": "o-1"},
		"region":  "eu",
	})
	b.ReportAllocs()
	for b.Loop() {
		_, _ = t.Render(vars)
	}
}
