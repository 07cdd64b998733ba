//go:build !linux

package device

import "runtime"

func lockThread() {
	runtime.LockOSThread()
}
