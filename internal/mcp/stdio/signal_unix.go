//go:build !windows

package stdio

import "syscall"

var terminateSignal = syscall.SIGTERM
