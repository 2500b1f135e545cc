//go:build unix

package clock

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// maxSharedProcs bounds the number of processes that may join one
// SharedVirtual clock's shared-memory segment at once.
const maxSharedProcs = 128

const (
	semMutex   = 0 // one holder at a time: the process allowed to advance global time
	semBarrier = 1 // posted once per active process whenever global time advances
)

// getpid identifies the calling participant. It is a package variable
// rather than a direct os.Getpid() call so tests can simulate multiple
// distinct participants from goroutines within a single test process,
// where every goroutine would otherwise share one pid.
var getpid = os.Getpid

// sharedProc is one process's slot in the shared-memory segment.
type sharedProc struct {
	nextTime   int64 // Instant (nanoseconds) this process is blocked until
	active     int32 // 0/1; cleared to help detect a crashed process
	holdsMutex int32 // 0/1
	thief      int32 // 0/1; this slot is the designated time thief
	pid        int32
}

// sharedState is the fixed-layout struct mapped over the backing file.
// Grounded in original_source/globalTimer.c's struct SharedState, with the
// two POSIX semaphores it embeds replaced by an external SysV semaphore
// set (Go has no portable in-process-shared-memory semaphore primitive).
type sharedState struct {
	currTime  int64
	numProcs  int32
	timeThief int32 // pid of the current time thief, 0 if none
	procs     [maxSharedProcs]sharedProc
}

// SharedVirtual coordinates a virtual clock shared by multiple processes
// (typically multiple instances of a simulated satellite bus) through a
// file-backed shared-memory region and a SysV semaphore pair acting as a
// mutex and a barrier. Exactly one process may be "inside" a time step at
// once; advancing past a step releases every other process waiting for
// that instant.
type SharedVirtual struct {
	path      string
	file      *os.File
	semID     int
	data      []byte
	state     *sharedState
	myIdx     int
	pid       int32
	wallEpoch time.Time

	mu     sync.Mutex
	closed bool
}

// OpenSharedVirtual joins (creating if necessary) the shared virtual clock
// backed by path. thief, if true, marks this process as eligible to bypass
// the barrier and block in real time without holding up the other
// processes' global clock — used for attaching a debugger to one process
// in a simulation without freezing the rest.
func OpenSharedVirtual(path string, thief bool) (*SharedVirtual, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("clock: open shared state file: %w", err)
	}
	fd := int(f.Fd())

	if err := syscall.Flock(fd, syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("clock: flock shared state file: %w", err)
	}
	unlock := func() { syscall.Flock(fd, syscall.LOCK_UN) }

	size := int(unsafe.Sizeof(sharedState{}))
	info, err := f.Stat()
	if err != nil {
		unlock()
		f.Close()
		return nil, fmt.Errorf("clock: stat shared state file: %w", err)
	}
	fresh := info.Size() < int64(size)
	if fresh {
		if err := f.Truncate(int64(size)); err != nil {
			unlock()
			f.Close()
			return nil, fmt.Errorf("clock: truncate shared state file: %w", err)
		}
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unlock()
		f.Close()
		return nil, fmt.Errorf("clock: mmap shared state file: %w", err)
	}
	state := (*sharedState)(unsafe.Pointer(&data[0]))

	key := ftok(path, 'L')
	semID, err := unix.Semget(key, 2, unix.IPC_CREAT|0o666)
	if err != nil {
		unix.Munmap(data)
		unlock()
		f.Close()
		return nil, fmt.Errorf("clock: semget: %w", err)
	}

	sv := &SharedVirtual{
		path: path, file: f, semID: semID, data: data, state: state,
		pid: int32(getpid()), wallEpoch: time.Now(),
	}

	if fresh {
		state.numProcs = 0
		state.currTime = 0
		state.timeThief = 0
		// Bring the mutex semaphore to 1 (created at 0 by Semget). Safe
		// without racing another process because we still hold the flock.
		if err := unix.Semop(semID, []unix.Sembuf{{SemNum: semMutex, SemOp: 1}}); err != nil {
			unix.Munmap(data)
			unlock()
			f.Close()
			return nil, fmt.Errorf("clock: init mutex semaphore: %w", err)
		}
	}

	if err := sv.lockMutex(); err != nil {
		unix.Munmap(data)
		unlock()
		f.Close()
		return nil, err
	}

	if state.numProcs >= maxSharedProcs {
		sv.unlockMutex()
		unix.Munmap(data)
		unlock()
		f.Close()
		return nil, fmt.Errorf("clock: shared state file %s is full", path)
	}
	sv.myIdx = int(state.numProcs)
	state.numProcs++
	p := &state.procs[sv.myIdx]
	p.nextTime = state.currTime
	p.active = 1
	p.holdsMutex = 0
	p.pid = sv.pid
	if thief {
		state.timeThief = sv.pid
	}
	sv.unlockMutex()

	unlock()
	return sv, nil
}

// ftok derives a stable SysV IPC key from a path and a project id, in the
// spirit of the POSIX ftok() function (which golang.org/x/sys/unix does
// not wrap): mix the path's inode number with projID so two processes
// naming the same file agree on the same key.
func ftok(path string, projID byte) int {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		// Fall back to hashing the path itself; still stable across
		// processes since it's a pure function of the string.
		var h uint32 = 2166136261
		for i := 0; i < len(path); i++ {
			h ^= uint32(path[i])
			h *= 16777619
		}
		return int(h&0xffffff) | int(projID)<<24
	}
	return int(projID)<<24 | int((st.Dev&0xff)<<16) | int(st.Ino&0xffff)
}

func (sv *SharedVirtual) lockMutex() error {
	return unix.Semop(sv.semID, []unix.Sembuf{{SemNum: semMutex, SemOp: -1}})
}

func (sv *SharedVirtual) unlockMutex() {
	_ = unix.Semop(sv.semID, []unix.Sembuf{{SemNum: semMutex, SemOp: 1}})
}

func (sv *SharedVirtual) myProc() *sharedProc { return &sv.state.procs[sv.myIdx] }

// Now returns the shared global instant as of the last Block call (or join
// time, if Block has never been called).
func (sv *SharedVirtual) Now() Instant { return Instant(sv.state.currTime) }

// WallNow maps the simulated instant onto this process's join-time wall
// clock, for logging only.
func (sv *SharedVirtual) WallNow() time.Time { return sv.wallEpoch.Add(sv.Now()) }

// Block implements the shared barrier protocol: record this
// process's deadline, compute the next global time as the smallest
// deadline among active processes, release every waiting process via the
// barrier (unless a time thief is active, in which case the global clock
// doesn't move and only the thief proceeds, in real time), then wait until
// it is this process's turn.
func (sv *SharedVirtual) Block(deadline *Instant, ready func(timeoutMs int) error) error {
	if deadline == nil {
		return ready(-1)
	}

	if err := sv.lockMutex(); err != nil {
		return err
	}
	me := sv.myProc()
	me.nextTime = int64(*deadline)

	smallest := -1
	activeCount := 0
	for i := 0; i < int(sv.state.numProcs); i++ {
		p := &sv.state.procs[i]
		if p.pid > 0 && p.active != 0 {
			activeCount++
			if smallest < 0 || p.nextTime < sv.state.procs[smallest].nextTime {
				smallest = i
			}
		}
	}

	isThief := sv.state.timeThief != 0 && sv.state.timeThief == sv.pid
	if sv.state.timeThief == 0 {
		if smallest >= 0 {
			sv.state.currTime = sv.state.procs[smallest].nextTime
			sv.state.procs[smallest].active = 0
		}
		for i := 0; i < activeCount; i++ {
			_ = unix.Semop(sv.semID, []unix.Sembuf{{SemNum: semBarrier, SemOp: 1}})
		}
	}

	me.holdsMutex = 0
	me.thief = boolToInt32(isThief)
	sv.unlockMutex()

	if isThief {
		real := NewReal()
		return ready(deadlineToMillis(real, deadline))
	}

	for {
		if err := unix.Semop(sv.semID, []unix.Sembuf{{SemNum: semBarrier, SemOp: -1}}); err != nil {
			continue
		}
		if err := sv.lockMutex(); err != nil {
			return err
		}
		if sv.Now() < *deadline {
			// Not our turn yet; release and wait for the next round.
			sv.unlockMutex()
			continue
		}
		me.active = 1
		me.holdsMutex = 0
		sv.unlockMutex()
		break
	}
	return ready(0)
}

// SetThief toggles whether this process bypasses the barrier entirely,
// blocking in real time instead of participating in global-time advance.
func (sv *SharedVirtual) SetThief(thief bool) {
	if thief {
		sv.state.timeThief = sv.pid
	} else if sv.state.timeThief == sv.pid {
		sv.state.timeThief = 0
	}
}

// Close releases this process's slot and unmaps and closes its view of the
// shared file. The semaphore set and the shared file itself are left in
// place, even when no process remains attached.
func (sv *SharedVirtual) Close() error {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.closed {
		return nil
	}
	sv.closed = true

	_ = sv.lockMutex()
	me := sv.myProc()
	me.active = 0
	last := true
	if me.holdsMutex != 0 {
		if sv.state.timeThief == sv.pid {
			sv.state.timeThief = 0
		}
		me.pid = 0
		for i := 0; i < int(sv.state.numProcs); i++ {
			p := &sv.state.procs[i]
			if p.pid > 0 && p.active != 0 {
				last = false
				_ = unix.Semop(sv.semID, []unix.Sembuf{{SemNum: semBarrier, SemOp: 1}})
			}
		}
		me.holdsMutex = 0
	}
	me.pid = 0
	sv.unlockMutex()

	err := unix.Munmap(sv.data)
	if cerr := sv.file.Close(); err == nil {
		err = cerr
	}
	// The semaphore set and backing file outlive any single process on
	// purpose (mirroring the original's file-based recovery story): the
	// next OpenSharedVirtual call reuses them rather than racing to
	// remove a resource another late-arriving process might still need.
	_ = last
	return err
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
