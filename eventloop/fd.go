package eventloop

// FdCallback is invoked when a registered file descriptor becomes ready for
// the condition it was registered under, or (for a cleanup callback) when
// that registration is torn down.
type FdCallback func(fd int, events IOEvents)

// sentinelFD is passed to a cleanup callback in place of the real
// descriptor: by the time cleanup runs the fd may already be closed, so it
// is never safe to act on it as a live descriptor.
const sentinelFD = -1

// fdState tracks the callbacks registered against a single file descriptor.
// A descriptor may have independent read/write/error watchers, each with
// its own optional cleanup; the slot is torn down once none remain.
type fdState struct {
	fd      int
	read    FdCallback
	write   FdCallback
	errFn   FdCallback

	readCleanup  FdCallback
	writeCleanup FdCallback
	errCleanup   FdCallback

	active bool // true once any slot is non-nil; false marks a free table entry
}

func (s *fdState) interest() IOEvents {
	var e IOEvents
	if s.read != nil {
		e |= EventRead
	}
	if s.write != nil {
		e |= EventWrite
	}
	if s.errFn != nil {
		e |= EventError
	}
	return e
}

func (s *fdState) empty() bool {
	return s.read == nil && s.write == nil && s.errFn == nil
}

// AddFd registers fn to be called when fd becomes ready for the events in
// interest (a combination of EventRead, EventWrite, EventError). A second
// call for the same fd and a disjoint interest set augments the existing
// registration rather than replacing it; overlapping slots are replaced —
// overwriting logs a warning and invokes any prior cleanup for that slot.
// cleanup, if given, is invoked exactly once, with a sentinel fd value,
// when the slot is later cleared by RemoveFd, displaced by a subsequent
// AddFd, or evicted after a hangup.
func (l *Loop) AddFd(fd int, interest IOEvents, fn FdCallback, cleanup ...FdCallback) error {
	if fd < 0 || fd >= len(l.fds) {
		return ErrFDOutOfRange
	}
	var cleanupFn FdCallback
	if len(cleanup) > 0 {
		cleanupFn = cleanup[0]
	}

	s := l.fds[fd]
	if s == nil {
		s = &fdState{fd: fd}
		l.fds[fd] = s
	}
	before := s.interest()

	if interest.Has(EventRead) {
		l.replaceSlot(fd, EventRead, &s.read, &s.readCleanup, fn, cleanupFn)
	}
	if interest.Has(EventWrite) {
		l.replaceSlot(fd, EventWrite, &s.write, &s.writeCleanup, fn, cleanupFn)
	}
	if interest.Has(EventError) {
		l.replaceSlot(fd, EventError, &s.errFn, &s.errCleanup, fn, cleanupFn)
	}
	s.active = true

	after := s.interest()
	if before == 0 {
		return l.poll.Add(fd, after)
	}
	if before != after {
		return l.poll.Modify(fd, after)
	}
	return nil
}

// replaceSlot installs fn/cleanupFn into *cbSlot/*cleanupSlot, first
// logging a warning and firing any callback it displaces.
func (l *Loop) replaceSlot(fd int, slot IOEvents, cbSlot, cleanupSlot *FdCallback, fn, cleanupFn FdCallback) {
	if *cbSlot != nil {
		l.log.Log(LogEntry{
			Level: LevelWarn, Category: "fd", LoopID: l.id,
			Message: "overwriting existing fd registration",
			Context: map[string]any{"fd": fd, "slot": slot},
		})
		l.fireCleanup(*cleanupSlot, slot)
	}
	*cbSlot = fn
	*cleanupSlot = cleanupFn
}

func (l *Loop) fireCleanup(cleanup FdCallback, slot IOEvents) {
	if cleanup != nil {
		l.safeCallFd(cleanup, sentinelFD, slot)
	}
}

// RemoveFd drops fn registrations for the given interest on fd, tearing
// down the poller registration entirely once no slot remains. Removing an
// interest with no matching callback is a no-op, not an error. Any cleanup
// registered for a cleared slot fires exactly once, with a sentinel fd
// value.
func (l *Loop) RemoveFd(fd int, interest IOEvents) error {
	if fd < 0 || fd >= len(l.fds) {
		return ErrFDOutOfRange
	}
	s := l.fds[fd]
	if s == nil {
		return ErrFDNotRegistered
	}
	if interest.Has(EventRead) {
		l.clearSlot(EventRead, &s.read, &s.readCleanup)
	}
	if interest.Has(EventWrite) {
		l.clearSlot(EventWrite, &s.write, &s.writeCleanup)
	}
	if interest.Has(EventError) {
		l.clearSlot(EventError, &s.errFn, &s.errCleanup)
	}

	if s.empty() {
		l.fds[fd] = nil
		return l.poll.Remove(fd)
	}
	return l.poll.Modify(fd, s.interest())
}

func (l *Loop) clearSlot(slot IOEvents, cbSlot, cleanupSlot *FdCallback) {
	if *cbSlot == nil {
		return
	}
	*cbSlot = nil
	cleanup := *cleanupSlot
	*cleanupSlot = nil
	l.fireCleanup(cleanup, slot)
}

// evictFd tears down fd's registration entirely, used when the poller
// reports a hangup on an fd with no read or write watcher. Every occupied
// slot's cleanup fires exactly once, with a sentinel fd value. The loop
// has no EBADF sweep: an error from the poller's Wait ends Run.
func (l *Loop) evictFd(fd int) {
	if fd < 0 || fd >= len(l.fds) {
		return
	}
	s := l.fds[fd]
	l.fds[fd] = nil
	if s != nil {
		l.fireCleanup(s.readCleanup, EventRead)
		l.fireCleanup(s.writeCleanup, EventWrite)
		l.fireCleanup(s.errCleanup, EventError)
	}
	_ = l.poll.Remove(fd)
}
