// Package auth authenticates dcsense users and authorises their access to
// facilities and controllers.
//
// Credentials are stored as a salted digest bound to a per-deployment key
// (HMAC-SHA256, or argon2id over the HMAC output). A successful login issues
// one opaque session ticket per user with an absolute expiry; presenting a
// ticket requires both the ticket string and its expiry to match the stored
// row exactly.
//
// Access levels are ordinal (public < user < admin). Facility and controller
// data additionally require ownership, which admins bypass.
package auth
