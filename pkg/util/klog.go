package util

import (
	"fmt"

	"k8s.io/klog/v2"
)

func LogFatalAndExit(err error, format string, a ...any) {
	klog.ErrorS(err, fmt.Sprintf(format, a...))
	klog.FlushAndExit(klog.ExitFlushTimeout, 1)
}

// LogErrorf logs the error and returns it wrapped with the given message
func LogErrorf(err error, format string, a ...any) error {
	msg := fmt.Sprintf(format, a...)
	klog.Errorf("%s: %v", msg, err)
	return fmt.Errorf("%s: %w", msg, err)
}
