package link

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// waitUntil blocks on cond (whose Locker must already be held by the
// caller) until pred returns true or deadline passes, re-checking pred
// after every wakeup. Using an absolute deadline rather than a
// relative sleep means a spurious wakeup can't reset the clock and
// extend the wait past what the caller asked for.
//
// sync.Cond has no deadline-aware Wait, so a timer goroutine is used
// to force a wakeup at the deadline; it is stopped, not joined, on
// return, so a timer that has already fired may still broadcast once
// afterwards.
func waitUntil(cond *sync.Cond, deadline time.Time, pred func() bool) bool {
	if pred() {
		return true
	}

	timer := time.AfterFunc(time.Until(deadline), func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()

	for !pred() {
		if !time.Now().Before(deadline) {
			return false
		}
		cond.Wait()
	}
	return true
}

// goroutineID extracts the calling goroutine's numeric id by parsing
// its own stack trace header ("goroutine 123 [running]:..."). The
// runtime deliberately exposes no public goroutine-identity API; this
// is the closest Go equivalent of the C++ original's comparison
// against std::this_thread::get_id(), used only to detect a
// self-join in Close.
func goroutineID() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return -1
	}
	buf = buf[len(prefix):]

	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		return -1
	}

	id, err := strconv.ParseInt(string(buf[:end]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
