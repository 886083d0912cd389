package engine

import "errors"

var (
	// ErrOffline is returned by triggers that need the network while offline.
	ErrOffline = errors.New("device is offline")

	// ErrDrainInProgress is returned when a drain is already running.
	ErrDrainInProgress = errors.New("drain already in progress")

	// ErrPrefetchInProgress is returned when a prefetch is already running.
	ErrPrefetchInProgress = errors.New("prefetch already in progress")
)

// IsOffline returns true if err is or wraps ErrOffline.
func IsOffline(err error) bool {
	return errors.Is(err, ErrOffline)
}

// IsBusy returns true if the trigger was coalesced into a running cycle.
// Uses errors.Is to handle wrapped errors.
func IsBusy(err error) bool {
	return errors.Is(err, ErrDrainInProgress) || errors.Is(err, ErrPrefetchInProgress)
}
