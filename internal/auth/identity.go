// Package auth provides password hashing, JWT access tokens and the
// account endpoints built on them.
package auth

// Identity is the authenticated caller of a request. It lives only in the
// request context and is never persisted.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}
