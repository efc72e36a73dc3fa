package settings

import "testing"

func TestTrimQuotes(t *testing.T) {
	cases := map[string]string{
		`"abc"`: "abc",
		`'abc'`: "abc",
		`a"b`:   `a"b`,
		`abc`:   "abc",
		`"`:     `"`,
		``:      ``,
		`""`:    "",
	}
	for in, want := range cases {
		if got := TrimQuotes(in); got != want {
			t.Errorf("TrimQuotes(%q) = %q, want %q", in, got, want)
		}
	}
}
