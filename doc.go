// Package marketauth provides the authentication and account-security engine
// for a membership-tiered marketplace: password login with Redis-backed
// brute-force lockout, stateless JWT sessions with password-change
// invalidation, optional TOTP two-factor login with single-use backup codes,
// and a hashed, single-use password-reset token lifecycle.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// marketauth is the public surface. It exposes [Engine], [Builder], [Config],
// sentinel errors, and value types. Internal coordination — lockout counters,
// request throttling, metrics, audit dispatch — lives under internal/ and is
// never exported. Persistence is supplied by the caller through
// [AccountStore]; a reference implementation ships in store/gormstore.
//
// # What this package must NOT do
//
//   - Expose Redis clients or key layouts in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Return raw provider or driver errors for expected outcomes; every
//     expected rejection maps to a package sentinel error.
package marketauth
