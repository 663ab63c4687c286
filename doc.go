// Package identity implements a credential and session lifecycle engine:
// account registration with email confirmation, password login with lockout,
// single-use purpose-scoped tokens, password reset, and admin account
// management.
//
// Layering:
//   - Accounts and Tokens repositories (Bun over SQLite, or any Bun-supported
//     backend) are the durable credential store. Per-account mutations are
//     single-row atomic UPDATEs guarded by a version counter, so concurrent
//     operations on one account serialize at the row.
//   - TokenService issues and consumes opaque single-use tokens for email
//     confirmation and password reset. Consume is a conditional UPDATE:
//     of N concurrent consumers exactly one wins.
//   - LockoutPolicy decides when failed logins trip a lockout window and for
//     how long (a fixed base duration with optional exponential backoff).
//   - Auther composes the three and is the only type callers interact with.
//     Sessions are stateless signed tokens; logout is client-side discard.
//
// Enumeration safety: login reports the same invalid-credentials error for
// unknown accounts and wrong passwords, and hashes a decoy password for
// unknown accounts so the two paths cost the same. Locked and unconfirmed
// accounts are distinguishable by design: hiding those states would make
// the corresponding recovery flows unusable. The unconfirmed state is only
// disclosed after the password verifies; the locked state is checked first
// so a correct password cannot probe a locked account.
package identity
