package device

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// callbackNice is the niceness requested for the goroutine driving the
// callbacks. Raising priority needs CAP_SYS_NICE; without it the call fails
// and the thread keeps the default priority.
const callbackNice = -10

// lockThread pins the calling goroutine to its OS thread and raises that
// thread's scheduling priority. It never unlocks: the thread exits with the
// goroutine.
func lockThread() {
	runtime.LockOSThread()
	_ = unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), callbackNice)
}
