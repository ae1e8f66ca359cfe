package stream

import "testing"

func TestBalancedBraces(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"empty", "", false},
		{"open-only", `{"city":`, false},
		{"complete", `{"city":"nyc"}`, true},
		{"brace-in-string", `{"city":"ny{c}"}`, true},
		{"escaped-quote-in-string", `{"city":"ny\"c}"}`, true},
		{"split-across-fragments-complete", `{"a":1}{"b":2}`, false},
		{"unbalanced-close", `{}}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := balancedBraces(tc.in); got != tc.want {
				t.Errorf("balancedBraces(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestAccumulator_JoinsFragmentsByCallID(t *testing.T) {
	a := newAccumulator()
	a.add("call_1", "get_weather", `{"city":`)
	a.add("call_1", "", `"nyc"}`)
	a.add("call_2", "get_time", `{"tz":"UTC"}`)

	if got := a.args("call_1"); got != `{"city":"nyc"}` {
		t.Errorf("call_1 args = %q", got)
	}
	if !a.complete("call_1") {
		t.Error("call_1 should be complete")
	}
	if got := a.byCall["call_1"].name; got != "get_weather" {
		t.Errorf("call_1 name = %q, want get_weather (late empty-name fragment must not clobber it)", got)
	}
	if !a.complete("call_2") {
		t.Error("call_2 should be complete")
	}
}

func TestAccumulator_IncompleteMidStream(t *testing.T) {
	a := newAccumulator()
	a.add("call_1", "get_weather", `{"city":"n`)
	if a.complete("call_1") {
		t.Error("call_1 should not be complete yet")
	}
}
