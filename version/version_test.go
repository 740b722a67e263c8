package version

import "testing"

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.3", 0},
		{"1.10", "1.2", 1},
		{"2.0_1", "2.0", 1},
		{"1.0,1", "2.0", 1}, // epoch dominates body: epoch 1 beats epoch 0 regardless of body
		{"1.0a", "1.0b", -1},
	}
	for _, c := range cases {
		if got := Compare(c.a, c.b); got != c.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestCompareTotality(t *testing.T) {
	samples := []string{"1.2.3", "1.10", "1.2", "2.0_1", "2.0", "1.0,1", "1.0a", "1.0b", ""}
	for _, a := range samples {
		if Compare(a, a) != 0 {
			t.Errorf("Compare(%q, %q) != 0", a, a)
		}
		for _, b := range samples {
			if got, want := Compare(a, b), -Compare(b, a); got != want {
				t.Errorf("Compare(%q, %q) = %d, -Compare(%q, %q) = %d", a, b, got, b, a, want)
			}
		}
	}
}

func TestRequireCheck(t *testing.T) {
	cases := []struct {
		baseline, require string
		want              Result
	}{
		{"1.5", ">=1.0<2.0", Met},
		{"2.0", ">=1.0<2.0", Unmet},
		{"1.5", "|", Malformed},
		{"0.2.1", ">=2.0", Unmet},
		{"4.1.2", ">5.1", Unmet},
		{"1.5", ">=1.5", Met},
		{"1.5", ">1.5", Unmet},
		{"1.4", "<1.5", Met},
		{"1.5", "<=1.5", Met},
	}
	for _, c := range cases {
		if got := RequireCheck(c.baseline, c.require); got != c.want {
			t.Errorf("RequireCheck(%q, %q) = %v, want %v", c.baseline, c.require, got, c.want)
		}
	}
}
