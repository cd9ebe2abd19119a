package x402

import (
	"testing"
	"time"
)

// The defaults mirror the node RPC budget (10s) and one remote settle call (30s).
func TestDefaultTimeouts(t *testing.T) {
	want := TimeoutConfig{VerifyTimeout: 10 * time.Second, SettleTimeout: 30 * time.Second, RequestTimeout: 60 * time.Second}
	if DefaultTimeouts != want {
		t.Fatalf("DefaultTimeouts = %+v, want %+v", DefaultTimeouts, want)
	}
	if err := DefaultTimeouts.Validate(); err != nil {
		t.Fatalf("DefaultTimeouts invalid: %v", err)
	}
}

func TestTimeoutConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		verify  time.Duration
		settle  time.Duration
		wantErr bool
	}{
		{"equal", 30 * time.Second, 30 * time.Second, false},
		{"settle longer", time.Second, time.Minute, false},
		{"zero verify", 0, time.Minute, true},
		{"negative verify", -time.Second, time.Minute, true},
		{"zero settle", time.Second, 0, true},
		{"settle shorter than verify", time.Minute, time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := TimeoutConfig{VerifyTimeout: tt.verify, SettleTimeout: tt.settle}.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimeoutConfigWithers(t *testing.T) {
	c := DefaultTimeouts.
		WithVerifyTimeout(2 * time.Second).
		WithSettleTimeout(5 * time.Second).
		WithRequestTimeout(7 * time.Second)

	if c.VerifyTimeout != 2*time.Second || c.SettleTimeout != 5*time.Second || c.RequestTimeout != 7*time.Second {
		t.Errorf("unexpected config %+v", c)
	}
	if DefaultTimeouts.VerifyTimeout != 10*time.Second {
		t.Error("withers must not modify the receiver")
	}
}
