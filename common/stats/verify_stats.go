package stats

import (
	"fmt"
	"sort"
	"strings"
	"testing"
)

// RuleChecker compares a rendered stat value, nil when absent, with the
// expected value of a Rule.
type RuleChecker struct {
	name  string
	check func(got, want interface{}) bool
}

// Rule is the condition one stat must meet in VerifyStats.
type Rule struct {
	Checker RuleChecker
	Value   interface{}
}

var (
	Int64EqTest = RuleChecker{"int64Eq", func(got, want interface{}) bool {
		g, gok := asInt64(got)
		w, wok := asInt64(want)
		return gok && wok && g == w
	}}
	FloatEqTest = RuleChecker{"floatEq", func(got, want interface{}) bool {
		g, gok := got.(float64)
		w, wok := asFloat64(want)
		return gok && wok && g == w
	}}
	DoesNotExistTest = RuleChecker{"doesNotExist", func(got, _ interface{}) bool {
		return got == nil
	}}
)

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

func asFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// VerifyStats fails t for every rule in contains the finagle rendering of
// registry does not meet, then dumps the registry. Other registries are
// not inspected.
func VerifyStats(tag string, registry StatsRegistry, t testing.TB, contains map[string]Rule) {
	t.Helper()
	reg, ok := registry.(*finagleRegistry)
	if !ok {
		return
	}
	data := reg.flatten()

	var failures []string
	for key, rule := range contains {
		got := data[key]
		if rule.Checker.check(got, rule.Value) {
			continue
		}
		if rule.Checker.name == DoesNotExistTest.name {
			failures = append(failures, fmt.Sprintf("%s: present as %v", key, got))
		} else {
			failures = append(failures, fmt.Sprintf("%s: got %v, want %s %v", key, got, rule.Checker.name, rule.Value))
		}
	}
	if len(failures) == 0 {
		return
	}
	sort.Strings(failures)
	pretty, _ := reg.MarshalJSONPretty()
	t.Errorf("%s: stats mismatch:\n%s\nregistry:\n%s", tag, strings.Join(failures, "\n"), pretty)
}
