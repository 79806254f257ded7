// ABOUTME: Tests for software volume control
// ABOUTME: Tests volume multiplier, clamping and int16 conversion
package output

import (
	"testing"
)

func TestVolumeMultiplier(t *testing.T) {
	tests := []struct {
		volume   int
		muted    bool
		expected float64
	}{
		{100, false, 1.0},
		{50, false, 0.5},
		{0, false, 0.0},
		{80, true, 0.0}, // Muted overrides volume
	}

	for _, tt := range tests {
		result := getVolumeMultiplier(tt.volume, tt.muted)
		if result != tt.expected {
			t.Errorf("volume=%d, muted=%v: expected %f, got %f",
				tt.volume, tt.muted, tt.expected, result)
		}
	}
}

func TestApplyVolume(t *testing.T) {
	samples := []float32{0.5, -0.5, 1.0, -1.0}

	result := applyVolume(samples, 50, false)

	expected := []int16{8192, -8192, 16384, -16384}
	for i := range expected {
		if result[i] != expected[i] {
			t.Errorf("sample %d: expected %d, got %d", i, expected[i], result[i])
		}
	}
}

func TestApplyVolume_Muted(t *testing.T) {
	result := applyVolume([]float32{0.25, -0.75}, 100, true)
	for i, s := range result {
		if s != 0 {
			t.Errorf("sample %d: expected silence, got %d", i, s)
		}
	}
}

func TestVolumeClamping(t *testing.T) {
	v := NewVolume(150)
	if v.GetVolume() != 100 {
		t.Errorf("expected volume clamped to 100, got %d", v.GetVolume())
	}

	v.SetVolume(-10)
	if v.GetVolume() != 0 {
		t.Errorf("expected volume clamped to 0, got %d", v.GetVolume())
	}

	v.SetMuted(true)
	if !v.IsMuted() {
		t.Error("expected muted")
	}
}

