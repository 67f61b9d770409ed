package main

import (
	"errors"
	"fmt"

	"github.com/srg/blecentral/session"
	"github.com/srg/blecentral/watcher"
)

// formatUserError maps internal errors to actionable one-line messages.
func formatUserError(err error) string {
	var notFound *session.NotFoundError
	switch {
	case errors.Is(err, watcher.ErrScanTimeout):
		return "device enumeration did not complete in time - check that Bluetooth is enabled and retry"
	case errors.Is(err, watcher.ErrNotStarted):
		return "the device watcher is not running"
	case errors.As(err, &notFound):
		return fmt.Sprintf("%s - run 'blecentral scan' or 'blecentral inspect' to list what is available", notFound.Error())
	case session.IsConnectionState(err, session.NotConnected):
		return "device not connected - establish a connection first"
	default:
		return err.Error()
	}
}
