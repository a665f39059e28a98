// Package identity provides the identity and session core for multi-user
// applications: password verification, email ownership proof through short
// lived one-time codes, access/refresh token issuance and the periodic sweep
// that reclaims accounts which never finished signing up.
//
// Account lifecycle:
//   - Accounts start as pending and carry an outstanding verification code
//     with a 15 minute expiry. Resending a code overwrites the previous one.
//   - AccountStateMachine owns the transition graph. The only legal move is
//     pending to verified, persisted as a compare-and-set on the account row
//     so two concurrent verifications produce a single transition.
//   - ReconciliationJob deletes accounts that stayed pending past the grace
//     period. Verified accounts are never touched.
//
// Sessions:
//   - TokenService signs HS256 tokens of two kinds, access and refresh. A
//     token of the wrong kind is rejected even when its signature is valid,
//     and every validation failure collapses into ErrInvalidToken.
//   - SessionCookies describes the cookie pair the transport layer sets and
//     clears together.
//
// Collaborators:
//   - AccountRepository, Mailer and Dispatcher are interfaces. The repository,
//     mailer, queue and httpapi packages ship default implementations.
//   - ActivitySink is a light-weight audit emitter. Sinks run best-effort
//     (errors are logged) so recording never blocks authentication.
package identity
