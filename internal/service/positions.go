package service

import "dayplanner/internal/model"

// dayList is the stored tasks of one (user, assigned date), in position
// order. Incomplete tasks come first, completed tasks after them.
type dayList []*model.Task

func (l dayList) indexOf(id int64) int {
	for i, t := range l {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// firstCompleted is the index of the first completed task, or len(l).
func (l dayList) firstCompleted() int {
	for i, t := range l {
		if t.IsCompleted {
			return i
		}
	}
	return len(l)
}

func (l dayList) hasCompleted() bool {
	return l.firstCompleted() < len(l)
}

// without returns a copy of l with index i removed.
func (l dayList) without(i int) dayList {
	out := make(dayList, 0, len(l))
	out = append(out, l[:i]...)
	return append(out, l[i+1:]...)
}

// insertAt returns a copy of l with t placed at index i.
func (l dayList) insertAt(i int, t *model.Task) dayList {
	if i < 0 {
		i = 0
	}
	if i > len(l) {
		i = len(l)
	}
	out := make(dayList, 0, len(l)+1)
	out = append(out, l[:i]...)
	out = append(out, t)
	return append(out, l[i:]...)
}

// moveTo relocates the entry at index from so that it ends up at index to.
func (l dayList) moveTo(from, to int) dayList {
	t := l[from]
	return l.without(from).insertAt(to, t)
}

// renumber assigns positions 1..N and returns the tasks whose position
// changed. Entries already in place are not touched.
func (l dayList) renumber() []*model.Task {
	var changed []*model.Task
	for i, t := range l {
		if t.Position != i+1 {
			t.Position = i + 1
			changed = append(changed, t)
		}
	}
	return changed
}

// moveAllowed reports whether moving the entry at from to index to keeps
// the completed boundary intact. An incomplete task may not land on or past
// the slot just before the first completed task; a completed task may not
// land above the first completed task.
func (l dayList) moveAllowed(from, to int) bool {
	if !l.hasCompleted() {
		return true
	}
	f := l.firstCompleted()
	if l[from].IsCompleted {
		return to >= f
	}
	return to+1 < f
}

// activeEnd is the insertion index for a new incomplete task: directly
// after the last incomplete one.
func (l dayList) activeEnd() int {
	return l.firstCompleted()
}

// settle moves l[i] to the zone boundary after its completed flag changed:
// the top of the completed zone for a completed task, the end of the
// incomplete zone otherwise.
func (l dayList) settle(i int) dayList {
	t := l[i]
	rest := l.without(i)
	return rest.insertAt(rest.firstCompleted(), t)
}
