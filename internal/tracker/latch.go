package tracker

// LatchState is the arrival latch lifecycle. The latch arms and disarms with
// distance while idle, but once fired it never resets for the lifetime of
// the session.
type LatchState int

const (
	LatchIdle LatchState = iota
	LatchNearbyReady
	LatchArrivedSent
)

// Latch is the one-shot arrival detector. Not safe for concurrent use; the
// tracker loop is its only caller.
type Latch struct {
	state LatchState
}

// Observe feeds the latch a new distance reading. Arms at or below the
// radius, disarms above it, and does nothing once fired.
func (l *Latch) Observe(distanceMetres, radiusMetres float64) {
	if l.state == LatchArrivedSent {
		return
	}
	if distanceMetres <= radiusMetres {
		l.state = LatchNearbyReady
	} else {
		l.state = LatchIdle
	}
}

// Fire consumes the armed latch. Returns false unless the latch is armed;
// firing is permanent.
func (l *Latch) Fire() bool {
	if l.state != LatchNearbyReady {
		return false
	}
	l.state = LatchArrivedSent
	return true
}

func (l *Latch) State() LatchState {
	return l.state
}

func (l *Latch) Armed() bool {
	return l.state == LatchNearbyReady
}

func (l *Latch) Fired() bool {
	return l.state == LatchArrivedSent
}
