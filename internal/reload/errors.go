package reload

import "errors"

var (
	// ErrConcurrentReloadDenied is returned by Preparing when the policy
	// disallows concurrent reloads and another module is already past Idle.
	ErrConcurrentReloadDenied = errors.New("reload: concurrent reload denied by policy")
	// ErrDrainTimeout is returned when drain_timeout elapses with
	// active-requests > 0 and the policy does not force-drain.
	ErrDrainTimeout = errors.New("reload: drain timed out with active requests")
	// ErrVerificationFailed is returned when every verification attempt
	// fails within max_verification_attempts.
	ErrVerificationFailed = errors.New("reload: verification failed")
	// ErrMessageDeliveryFailed is returned when delivering a buffered
	// message into the new instance during Resuming fails.
	ErrMessageDeliveryFailed = errors.New("reload: buffered message delivery failed")
)
