// Package session persists agent conversations to disk so that runs
// can resume with prior context. Each session is a single JSON
// document under the sessions directory, replaced atomically on every
// save.
package session
