package telemetry

import "testing"

func TestNormalizeState(t *testing.T) {
	tests := []struct {
		raw    string
		want   float64
		wantOK bool
	}{
		{"on", 1.0, true},
		{"off", 0.0, true},
		{"unavailable", 0, false},
		{"unknown", 0, false},
		{"21.5", 21.5, true},
		{"abc", 0, false},
		{"-3.2", -3.2, true},
		{"0", 0.0, true},
		{"", 0, false},
		{"ON", 0, false}, // tokens are case-sensitive
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeState(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("NormalizeState(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("NormalizeState(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
