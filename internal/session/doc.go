// Package session derives stable session identifiers from conversation
// context. Session state itself lives in the remote runtime; this
// package only computes the key that correlates turns of one thread.
package session
