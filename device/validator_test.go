package device

import "testing"

func TestValidatorInRange(t *testing.T) {
	v := NewValidator(0, 28000)

	tests := []struct {
		value   uint16
		percent int
	}{
		{0, 0},
		{14000, 50},
		{28000, 100},
	}

	for _, tt := range tests {
		got, err := v.Validate(tt.value)
		if err != nil {
			t.Fatalf("Validate(%d) unexpected error: %v", tt.value, err)
		}
		if got != tt.percent {
			t.Errorf("Validate(%d) = %d, want %d", tt.value, got, tt.percent)
		}
	}
}

func TestValidatorOutOfRange(t *testing.T) {
	v := NewValidator(0, 28000)

	_, err := v.Validate(28001)
	if err == nil {
		t.Fatal("Validate(28001) expected error, got nil")
	}
}

func TestValidatorFloorsTowardZero(t *testing.T) {
	v := NewValidator(0, 3)
	got, err := v.Validate(1)
	if err != nil {
		t.Fatalf("Validate(1) unexpected error: %v", err)
	}
	if got != 33 {
		t.Errorf("Validate(1) with max=3 = %d, want 33 (floor of 100/3)", got)
	}
}
