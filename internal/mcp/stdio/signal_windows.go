//go:build windows

package stdio

import "os"

var terminateSignal = os.Kill
