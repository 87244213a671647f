package window

import (
	"sync"

	"github.com/nebulastream/nesengine/engerrors"
	"github.com/nebulastream/nesengine/ids"
	"github.com/sirupsen/logrus"
)

// WindowDefinition is one active window instance: size and slide in
// milliseconds (size == slide for a tumbling window), plus the deploy
// time enabling mid-stream addition without retroactively splitting
// already-open slices (spec §4.I, §9 open question).
type WindowDefinition struct {
	ID         int
	Size       int64
	Slide      int64
	DeployTime ids.Timestamp
}

// SliceAssigner computes, for any event-time timestamp, the half-open
// slice interval on the grid of whichever active definitions cover it
// (spec §4.I). Definitions may be added or removed while the assigner is
// live; an addition only affects slices assigned to tuples arriving
// after its deploy time.
type SliceAssigner struct {
	mu     sync.RWMutex
	defs   []WindowDefinition
	nextID int
}

// NewSliceAssigner creates an assigner seeded with defs, assigning each a
// fresh ID and keeping its DeployTime as given (a zero DeployTime makes
// it active for every timestamp).
func NewSliceAssigner(defs ...WindowDefinition) *SliceAssigner {
	a := &SliceAssigner{}
	for _, d := range defs {
		a.nextID++
		d.ID = a.nextID
		a.defs = append(a.defs, d)
	}
	return a
}

// AddWindowDeploymentTime registers a new window definition deployed at
// deployTime and returns its id, usable later with
// RemoveWindowDeploymentTime.
func (a *SliceAssigner) AddWindowDeploymentTime(size, slide int64, deployTime ids.Timestamp) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	a.defs = append(a.defs, WindowDefinition{ID: a.nextID, Size: size, Slide: slide, DeployTime: deployTime})
	return a.nextID
}

// RemoveWindowDeploymentTime deregisters the window definition with id.
func (a *SliceAssigner) RemoveWindowDeploymentTime(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, d := range a.defs {
		if d.ID == id {
			a.defs = append(a.defs[:i], a.defs[i+1:]...)
			return
		}
	}
}

// Slice returns the half-open [start, end) slice interval for ts,
// computed as the extremum over every window definition's own grid
// (spec §4.I; ported from getSliceStartTs/getSliceEndTs in the original
// SliceAssigner): each definition contributes both a window-start grid
// point and a window-size/end grid point, and the slice is the widest
// interval not crossing any of them — start is the max of every active
// definition's nearer boundary, end is the min of every definition's
// (including not-yet-deployed ones') nearer boundary. A single
// slide-width grid alone is not enough once ts has passed a
// definition's first window close: the end grid then advances in its
// own slide-spaced steps offset by size, and ignoring it lets a slice
// span a window boundary it should stop at. Returns WindowAssignmentDrop,
// logged, if no definition is active at ts.
func (a *SliceAssigner) Slice(ts ids.Timestamp) (start, end ids.Timestamp, err error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	haveStart, haveEnd := false, false
	for _, d := range a.defs {
		if d.Slide <= 0 {
			continue
		}

		if d.DeployTime <= ts {
			lastWindowStart := ts - ids.Timestamp((int64(ts)-int64(d.DeployTime))%d.Slide)
			candStart := lastWindowStart
			if int64(ts) >= int64(d.DeployTime)+d.Size {
				lastWindowEnd := ts - ids.Timestamp((int64(ts)-int64(d.DeployTime)-d.Size)%d.Slide)
				if lastWindowEnd > candStart {
					candStart = lastWindowEnd
				}
			}
			if !haveStart || candStart > start {
				start = candStart
				haveStart = true
			}
		}

		var candEnd ids.Timestamp
		if ts < d.DeployTime {
			candEnd = d.DeployTime
		} else {
			nextWindowStart := ts - ids.Timestamp((int64(ts)-int64(d.DeployTime))%d.Slide) + ids.Timestamp(d.Slide)
			var nextWindowEnd ids.Timestamp
			if int64(ts) < int64(d.DeployTime)+d.Size {
				nextWindowEnd = d.DeployTime + ids.Timestamp(d.Size)
			} else {
				nextWindowEnd = ts - ids.Timestamp((int64(ts)-int64(d.DeployTime)-d.Size)%d.Slide) + ids.Timestamp(d.Slide)
			}
			candEnd = nextWindowStart
			if nextWindowEnd < candEnd {
				candEnd = nextWindowEnd
			}
		}
		if !haveEnd || candEnd < end {
			end = candEnd
			haveEnd = true
		}
	}
	if !haveStart {
		logrus.WithField("ts", int64(ts)).Warn("window: tuple maps to no active window definition, dropping")
		return 0, 0, engerrors.New(engerrors.WindowAssignmentDrop, "tuple cannot be mapped to any active window definition").
			WithContext("ts", int64(ts))
	}
	return start, end, nil
}

// Definitions returns a snapshot of currently active definitions.
func (a *SliceAssigner) Definitions() []WindowDefinition {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]WindowDefinition(nil), a.defs...)
}
