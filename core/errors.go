package core

import "errors"

var (
	// ErrProfileNotFound means no profile row exists for the user id.
	ErrProfileNotFound = errors.New("profile_not_found")

	// ErrManualRegistryUnavailable marks a failed manual-grant lookup. The
	// engine fails open (continues without the registry) but keeps the error
	// class distinct from "no grant found" so callers and logs can tell a
	// missing grant from an unreachable registry.
	ErrManualRegistryUnavailable = errors.New("manual_registry_unavailable")

	// ErrPersistFailure wraps a failed profile write. The call aborts, the
	// previously persisted entitlement stays untouched and no notification is
	// sent.
	ErrPersistFailure = errors.New("persist_failure")
)
