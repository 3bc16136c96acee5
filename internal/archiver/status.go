package archiver

import (
	"hyperwatch/internal/domain"
)

// isBagot reports whether the event is flapping: enough OK/alarm flips
// inside the bagot window.
func isBagot(spec domain.StateSpec, ev domain.Event) bool {
	elapsed := ev.Timestamp() - ev.IntOr(domain.FieldTsFirstBagot, 0)
	return elapsed <= spec.Bagot.Time && ev.IntOr(domain.FieldBagotFreq, -1) >= spec.Bagot.Freq
}

// isStealthy reports whether the last flip is still inside the stealthy window.
func isStealthy(spec domain.StateSpec, ev domain.Event) bool {
	return ev.Timestamp()-ev.IntOr(domain.FieldTsFirstStealthy, 0) <= spec.StealthyTime
}

// setStatus stores status on ev. Entering Bagot counts as one more flip;
// any status other than Stealthy or Bagot closes the stealthy window.
func setStatus(ev domain.Event, status domain.AlarmStatus) {
	ev[domain.FieldStatus] = int64(status)
	if status == domain.StatusBagot {
		ev[domain.FieldBagotFreq] = ev.IntOr(domain.FieldBagotFreq, 0) + 1
	}
	if status != domain.StatusStealthy && status != domain.StatusBagot {
		ev[domain.FieldTsFirstStealthy] = int64(0)
	}
}

// flip records an OK/alarm transition at the event timestamp.
func flip(ev domain.Event) {
	ts := ev.Timestamp()
	ev[domain.FieldTsFirstStealthy] = ts
	ev[domain.FieldBagotFreq] = ev.IntOr(domain.FieldBagotFreq, 0) + 1
	if ev.IntOr(domain.FieldTsFirstBagot, 0) == 0 {
		ev[domain.FieldTsFirstBagot] = ts
	}
}

// checkStatuses computes the status of ev from the previous record prev and
// updates the flapping bookkeeping carried on ev.
func checkStatuses(spec domain.StateSpec, ev, prev domain.Event) {
	ts := ev.Timestamp()
	freq := prev.IntOr(domain.FieldBagotFreq, 0)
	firstStealthy := prev.IntOr(domain.FieldTsFirstStealthy, 0)
	firstBagot := prev.IntOr(domain.FieldTsFirstBagot, 0)
	if firstBagot != 0 && ts-firstBagot > spec.Bagot.Time {
		firstBagot = 0
		freq = 0
	}
	ev[domain.FieldBagotFreq] = freq
	ev[domain.FieldTsFirstStealthy] = firstStealthy
	ev[domain.FieldTsFirstBagot] = firstBagot

	state := ev.IntOr(domain.FieldState, domain.StateOK)
	prevState := prev.IntOr(domain.FieldState, domain.StateOK)
	prevStatus := domain.StatusOngoing
	if prev.Has(domain.FieldStatus) {
		prevStatus = prev.Status()
	}

	reopen := prevState != state && (spec.RestoreEvent || state == domain.StateOK || prevState == domain.StateOK)
	switch {
	case prevStatus == domain.StatusCancelled && !reopen:
		setStatus(ev, domain.StatusCancelled)

	case state == domain.StateOK:
		switch {
		case isBagot(spec, ev):
			setStatus(ev, domain.StatusBagot)
		case isStealthy(spec, ev):
			setStatus(ev, domain.StatusStealthy)
		default:
			setStatus(ev, domain.StatusOff)
		}

	default:
		bagot, stealthy := isBagot(spec, ev), isStealthy(spec, ev)
		switch {
		case !bagot && !stealthy:
			setStatus(ev, domain.StatusOngoing)
		case bagot:
			setStatus(ev, domain.StatusBagot)
		case prevStatus == domain.StatusStealthy || prevStatus == domain.StatusOff:
			setStatus(ev, domain.StatusStealthy)
		default:
			setStatus(ev, domain.StatusOngoing)
		}
	}

	if (prevState == domain.StateOK) != (state == domain.StateOK) {
		flip(ev)
	}
}

// initStatus sets the bookkeeping of an event with no previous record. An
// alarm counts as a flip from an implicit OK state.
func initStatus(ev domain.Event) {
	ev[domain.FieldBagotFreq] = int64(0)
	ev[domain.FieldTsFirstStealthy] = int64(0)
	ev[domain.FieldTsFirstBagot] = int64(0)
	if ev.IntOr(domain.FieldState, domain.StateOK) == domain.StateOK {
		setStatus(ev, domain.StatusOff)
		return
	}
	setStatus(ev, domain.StatusOngoing)
	flip(ev)
}
