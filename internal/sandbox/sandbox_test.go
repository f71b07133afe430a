package sandbox

import "testing"

func TestNormalizeCPUPercent(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{0, 50},
		{-10, 50},
		{101, 50},
		{50, 50},
		{25, 25},
		{100, 100},
	}
	for _, c := range cases {
		if got := normalizeCPUPercent(c.in); got != c.want {
			t.Errorf("normalizeCPUPercent(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestNanoCPUs(t *testing.T) {
	if got := nanoCPUs(50); got != 500_000_000 {
		t.Errorf("nanoCPUs(50) = %d, want 500000000", got)
	}
	if got := nanoCPUs(100); got != 1_000_000_000 {
		t.Errorf("nanoCPUs(100) = %d, want 1000000000", got)
	}
}
