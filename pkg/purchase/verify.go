package purchase

// Verify is the gate every transaction passes before it is trusted, whether it
// came from the purchase flow, the startup snapshot or the live update stream.
// The zero VerificationResult is unverified.
func Verify[T any](result VerificationResult[T]) (T, error) {
	if !result.verified {
		var zero T
		return zero, &VerificationError{Reason: result.reason}
	}
	return result.payload, nil
}

// untrusted exposes an unverified payload for diagnostics only. Nothing read
// through it may reach the entitlement store.
func (r VerificationResult[T]) untrusted() T {
	return r.payload
}
