// Package portalauth is the identity and credential engine for a patient
// portal. It owns registration, login, JWT session issuance and renewal,
// whole-account token invalidation via a per-user generation counter, the
// emailed password-reset flow, and the saves that keep at most one active
// credit card, one active address, and one draft visit per visit type for
// each user.
//
// The engine is transport agnostic: it never touches http.Request or
// response writers. The cookie, middleware, gateway, mail, and store
// subpackages supply the surrounding plumbing, and examples/portal-minimal
// shows the pieces assembled into a small HTTP service.
package portalauth
