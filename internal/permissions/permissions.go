// Package permissions checks OS-level authorization to open capture devices.
package permissions

import "errors"

var (
	// ErrMicrophoneDenied means the user or policy refused microphone access.
	// Re-enable it under System Settings > Privacy & Security > Microphone.
	ErrMicrophoneDenied = errors.New("microphone permission denied")
	// ErrMicrophonePending means the permission prompt has just been shown.
	ErrMicrophonePending = errors.New("microphone permission requested, retry after granting access")
)
