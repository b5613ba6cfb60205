// Package identity implements the credential and session-token lifecycle for
// an account authentication service: password hashing, email verification
// tokens, and the access/refresh token issuance-rotation-invalidation
// protocol.
//
// Lifecycle:
//   - AccountLifecycle registers users, issues time-limited verification
//     tokens, and flips records to verified when a token is redeemed.
//     Registration commits before the verification email goes out; dispatch
//     failures are recoverable through ResendVerification, never a rollback.
//   - SessionManager authenticates credentials and maintains the single
//     session model: one live refresh token per user, rotated on every
//     renewal and cleared on logout. Rotation is a compare-and-swap against
//     the record store, so concurrent renewals with the same token have
//     exactly one winner.
//
// Tokens:
//   - TokenService signs access and refresh JWTs with independent secrets.
//     Validity is signature plus expiry, no store lookup. Expired, malformed,
//     and invalid are distinct failure kinds because callers react
//     differently to each.
//
// The user record store and the outbound mailer are collaborators behind the
// UserStore and Mailer interfaces; a bun backed store and an SMTP mailer are
// provided.
package identity
