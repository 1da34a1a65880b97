package barrier

import (
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
)

func hinted(ms ...int) []ports.Deferral {
	out := make([]ports.Deferral, 0, len(ms))
	for _, m := range ms {
		out = append(out, ports.Op(nil).WithTimeout(time.Duration(m)*time.Millisecond))
	}
	return out
}

func TestComputeTimeout(t *testing.T) {
	ms := time.Millisecond
	tests := []struct {
		name     string
		def      time.Duration
		deferred []ports.Deferral
		want     time.Duration
	}{
		{name: "default zero disables", def: 0, deferred: hinted(100), want: NoTimeout},
		{name: "default zero without deferrals", def: 0, want: NoTimeout},
		{name: "no deferrals uses default", def: 2000 * ms, want: 2000 * ms},
		{name: "highest hint wins", def: 2000 * ms, deferred: hinted(2500, 3500, 2700), want: 3500 * ms},
		{name: "default wins over lower hints", def: 2000 * ms, deferred: hinted(100, 200, 300), want: 2000 * ms},
		{name: "zero hint disables", def: 2000 * ms, deferred: hinted(5000, 0, 9000), want: NoTimeout},
		{
			name:     "unhinted deferrals use default",
			def:      1500 * ms,
			deferred: []ports.Deferral{ports.Op(nil), ports.Op(nil)},
			want:     1500 * ms,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeTimeout(tt.def, tt.deferred); got != tt.want {
				t.Errorf("ComputeTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeTimeout_Idempotent(t *testing.T) {
	deferred := hinted(10, 0, 20)
	for i := 0; i < 3; i++ {
		if got := ComputeTimeout(time.Second, deferred); got != NoTimeout {
			t.Fatalf("call %d: ComputeTimeout() = %v, want NoTimeout", i, got)
		}
	}
}
