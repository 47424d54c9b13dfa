// Package sync implements the playlist synchronization layer: the
// position-validation state machine, the client that keeps one mpv
// instance in the session, and the server that fans state out to every
// participant.
package sync

import "github.com/syncread/syncread/internal/logging"

var log = logging.L("sync")

// Position validation thresholds. mpv briefly reports stale playlist
// indexes while it transitions between files, which shows up as a large
// backward jump; the validator filters those without blocking genuine
// backward navigation.
const (
	smallJumpTolerance  = 3  // jitter always accepted
	moderateBackLimit   = 10 // backward jumps up to this are plausible navigation
	glitchLastFloor     = 5  // deep in the playlist...
	glitchCandidateCeil = 1  // ...snapping to the start is the known glitch shape
	confirmThreshold    = 2  // consecutive readings to trust a large backward jump
)

type validatorPhase int

const (
	phaseUnseeded validatorPhase = iota
	phaseStable
	phaseAwaiting
)

// PositionValidator filters spurious backward playlist-index reports.
// It is an explicit three-phase state machine: Unseeded before the first
// accepted report, Stable holding the last accepted position, and
// AwaitingConfirmation while a large backward jump waits for a second
// consecutive reading. Owned by a single sync client; not safe for
// concurrent use.
type PositionValidator struct {
	phase     validatorPhase
	last      int
	candidate int
	confirms  int
}

func NewPositionValidator() *PositionValidator {
	return &PositionValidator{phase: phaseUnseeded}
}

// Seed records an already-trusted position (the state sent with the join
// event) without running validation.
func (v *PositionValidator) Seed(pos int) {
	v.phase = phaseStable
	v.last = pos
	v.confirms = 0
}

// Last returns the last accepted position, if any.
func (v *PositionValidator) Last() (int, bool) {
	if v.phase == phaseUnseeded {
		return 0, false
	}
	return v.last, true
}

func (v *PositionValidator) accept(pos int) bool {
	v.phase = phaseStable
	v.last = pos
	v.confirms = 0
	return true
}

// rejectStable discards any pending candidate but keeps the accepted
// position.
func (v *PositionValidator) rejectStable() bool {
	if v.phase == phaseAwaiting {
		v.phase = phaseStable
	}
	v.confirms = 0
	return false
}

// Validate reports whether newPos should be trusted and, when accepted,
// commits it as the new reference position. Rejections leave the reference
// untouched.
func (v *PositionValidator) Validate(newPos, playlistLen int) bool {
	if newPos < 0 || newPos >= playlistLen {
		log.Debug("rejected out-of-range position", "position", newPos, "playlistLength", playlistLen)
		return v.rejectStable()
	}

	// First in-bounds reading bootstraps the machine.
	if v.phase == phaseUnseeded {
		return v.accept(newPos)
	}

	diff := newPos - v.last

	// Small jitter in either direction.
	if diff >= -smallJumpTolerance && diff <= smallJumpTolerance {
		return v.accept(newPos)
	}

	// Forward progress of any size is trusted.
	if diff > smallJumpTolerance {
		return v.accept(newPos)
	}

	// Moderate backward navigation is plausible user action.
	if -diff <= moderateBackLimit {
		return v.accept(newPos)
	}

	// Large backward jump. Deep-to-start is the known transition glitch
	// shape and is never accepted.
	if v.last > glitchLastFloor && newPos <= glitchCandidateCeil {
		log.Debug("rejected glitch-shaped jump", "from", v.last, "to", newPos)
		return v.rejectStable()
	}

	// Anything else needs two consecutive identical readings.
	if v.phase == phaseAwaiting && v.candidate == newPos {
		v.confirms++
		if v.confirms >= confirmThreshold {
			log.Info("accepted confirmed backward jump", "from", v.last, "to", newPos)
			return v.accept(newPos)
		}
		log.Debug("backward jump persists", "from", v.last, "to", newPos, "confirms", v.confirms)
		return false
	}

	v.phase = phaseAwaiting
	v.candidate = newPos
	v.confirms = 1
	log.Debug("tracking backward jump candidate", "from", v.last, "to", newPos)
	return false
}
