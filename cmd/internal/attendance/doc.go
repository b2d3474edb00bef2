// Package attendance owns live attendance sessions.
//
// A Session is the ephemeral, per-class record of an attendance-taking event.
// The Manager is the only writer: it creates sessions, applies marks, derives
// summaries and finalizes a session into durable records through a Sink before
// deleting it from the SessionStore.
//
// Mutations for one class are serialized by a per-class mutex inside the
// Manager and by atomic store primitives (Create is set-if-absent, Update is a
// compare-and-swap loop), so concurrent marks never lose an update.
package attendance
