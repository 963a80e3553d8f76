// Package history provides checkpoint-based undo/redo for a single document.
//
// A Manager turns a stream of full-text edits into a bounded, linear
// sequence of checkpoints. Key concepts:
//
// # Checkpoints
//
// A Checkpoint is an immutable snapshot of the whole document text. The
// manager keeps them oldest first, never fewer than one, and never more than
// its configured capacity. A cursor marks the checkpoint currently
// materialized as the live value.
//
// # Debounced and immediate commits
//
// Keystrokes go through RecordDebounced: the live value changes at once and
// a deferred commit is scheduled after a quiet period. Every new keystroke
// cancels and replaces the pending commit, so a burst of typing collapses
// into a single checkpoint:
//
//	m := history.New("")
//	m.RecordDebounced("a")
//	m.RecordDebounced("ab")
//	m.RecordDebounced("abc") // one checkpoint once the quiet period elapses
//
// Atomic operations such as paste, cut or delete-all use CommitImmediate,
// which cancels any pending commit and appends a checkpoint synchronously.
//
// # Navigation
//
// Undo and Redo move the cursor between existing checkpoints and never
// create one. Any commit made after an undo discards the redo branch.
//
// # States
//
// A manager is either AtCheckpoint (the live value equals the current
// checkpoint and nothing is pending) or Editing (the live value may lead the
// checkpoints and a deferred commit may be pending).
package history
