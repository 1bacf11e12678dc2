package sysmem

import (
	"runtime"
	"testing"
)

func TestTotal(t *testing.T) {
	r := Total()
	if r.TotalBytes == 0 {
		t.Fatal("Total() returned 0 bytes")
	}
	if !r.Reliable && r.TotalBytes != DefaultMemoryBytes {
		t.Errorf("unreliable result should be the default, got %d", r.TotalBytes)
	}
	if runtime.GOOS == "linux" && !r.Reliable {
		t.Log("sysinfo unavailable; using default")
	}
}

func TestGuard(t *testing.T) {
	total := Result{TotalBytes: 1000, Reliable: true}

	tests := []struct {
		name     string
		fraction float64
		usage    []int64
		want     []bool
	}{
		{"trips once", 0.5, []int64{100, 500, 501, 900, 10}, []bool{false, false, true, false, false}},
		{"disabled", 0, []int64{5000}, []bool{false}},
		{"out of range", 1.5, []int64{5000}, []bool{false}},
		{"negative usage", 0.1, []int64{-1}, []bool{false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(total, tt.fraction)
			for i, u := range tt.usage {
				if got := g.Check(u); got != tt.want[i] {
					t.Errorf("Check(%d) = %v, want %v", u, got, tt.want[i])
				}
			}
		})
	}

	if g := NewGuard(total, 0.25); g.Limit() != 250 {
		t.Errorf("Limit = %d, want 250", g.Limit())
	}
	var nilGuard *Guard
	if nilGuard.Limit() != 0 || nilGuard.Check(1) {
		t.Error("nil guard should be inert")
	}
}
