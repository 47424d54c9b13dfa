package sync

import "testing"

func TestValidatorBootstrapsFromFirstInBoundsReading(t *testing.T) {
	v := NewPositionValidator()

	if _, ok := v.Last(); ok {
		t.Fatal("fresh validator should have no reference position")
	}
	if !v.Validate(7, 30) {
		t.Fatal("first in-bounds reading should be accepted")
	}
	if last, ok := v.Last(); !ok || last != 7 {
		t.Fatalf("Last = %d, %v, want 7, true", last, ok)
	}
}

func TestValidatorRejectsOutOfBounds(t *testing.T) {
	v := NewPositionValidator()
	v.Seed(5)

	if v.Validate(-1, 30) {
		t.Fatal("negative position should be rejected")
	}
	if v.Validate(30, 30) {
		t.Fatal("position == playlist length should be rejected")
	}
	if last, _ := v.Last(); last != 5 {
		t.Fatalf("rejections must not move the reference, got %d", last)
	}
}

func TestValidatorAcceptsSmallJitter(t *testing.T) {
	v := NewPositionValidator()
	v.Seed(5)

	for _, pos := range []int{6, 7, 8} {
		v.Seed(5)
		if !v.Validate(pos, 30) {
			t.Fatalf("jitter to %d from 5 should be accepted", pos)
		}
	}

	v.Seed(5)
	if !v.Validate(2, 30) {
		t.Fatal("backward jitter within tolerance should be accepted")
	}
}

func TestValidatorAcceptsForwardJumpOfAnySize(t *testing.T) {
	v := NewPositionValidator()
	v.Seed(5)

	if !v.Validate(50, 60) {
		t.Fatal("large forward jump should be accepted")
	}
	if last, _ := v.Last(); last != 50 {
		t.Fatalf("Last = %d, want 50", last)
	}
}

func TestValidatorAcceptsModerateBackwardJump(t *testing.T) {
	v := NewPositionValidator()
	v.Seed(20)

	if !v.Validate(10, 30) {
		t.Fatal("backward jump of 10 should be accepted")
	}
}

func TestValidatorRejectsGlitchShapedJump(t *testing.T) {
	v := NewPositionValidator()
	v.Seed(20)

	// The transition glitch: deep position snapping to the playlist start.
	// Must never be accepted, even if repeated.
	for i := 0; i < 3; i++ {
		if v.Validate(0, 30) {
			t.Fatalf("glitch-shaped jump accepted on reading %d", i+1)
		}
	}
	if last, _ := v.Last(); last != 20 {
		t.Fatalf("Last = %d, want 20", last)
	}
}

func TestValidatorConfirmsLargeBackwardJump(t *testing.T) {
	v := NewPositionValidator()
	v.Seed(20)

	if v.Validate(5, 30) {
		t.Fatal("first reading of a large backward jump should be rejected")
	}
	if last, _ := v.Last(); last != 20 {
		t.Fatalf("pending jump must not move the reference, got %d", last)
	}
	if !v.Validate(5, 30) {
		t.Fatal("second identical reading should confirm the jump")
	}
	if last, _ := v.Last(); last != 5 {
		t.Fatalf("Last = %d, want 5 after confirmation", last)
	}
}

func TestValidatorDivergentReadingResetsCandidate(t *testing.T) {
	v := NewPositionValidator()
	v.Seed(20)

	if v.Validate(5, 30) {
		t.Fatal("first backward reading should be rejected")
	}
	// A different large backward value starts a fresh candidate rather
	// than confirming the old one.
	if v.Validate(6, 30) {
		t.Fatal("divergent backward reading should not confirm")
	}
	if v.Validate(5, 30) {
		t.Fatal("candidate switched to 6; 5 should start over")
	}
	if !v.Validate(5, 30) {
		t.Fatal("second consecutive 5 should confirm")
	}
}

func TestValidatorAcceptedReadingClearsPending(t *testing.T) {
	v := NewPositionValidator()
	v.Seed(20)

	if v.Validate(5, 30) {
		t.Fatal("backward reading should be rejected")
	}
	// An acceptable reading arrives before confirmation; the pending
	// candidate is abandoned.
	if !v.Validate(19, 30) {
		t.Fatal("jitter near the reference should be accepted")
	}
	if v.Validate(5, 30) {
		t.Fatal("old candidate should need confirmation again")
	}
}
