// Package terminal manages interactive processes running behind
// pseudo-terminals and the live output streams attached to them.
//
// A [Manager] is the registry of [Handle]s. Each handle has a [Backend]
// variant:
//
//   - [RawBackend]: the process is a direct child of the manager and is
//     terminated when the handle is closed or the manager stops.
//   - [MultiplexedBackend]: the process lives in a named session on a
//     dedicated tmux server. The handle's own process is a tmux client
//     attached through a PTY, so the session outlives the handle, the
//     manager and devdash itself.
//
// # Lifecycle
//
//	creating → running → detached   (multiplexed only, Detach or Stop)
//	                   → closed     (Close, KillSession, Stop for raw)
//	                   → crashed    (process exited on its own)
//
// A crashed handle stays in the registry so its recent output can still be
// read, until it is closed or CleanupIdle drops it. Close always kills the
// tmux session of a multiplexed handle; Detach always keeps it. A
// detached session is adopted again with [Manager.Reconnect], which mints
// a new handle.
//
// # Output
//
// One pump goroutine per handle reads the PTY and feeds, in order, the
// handle's [RingBuffer], its optional [Recorder] and every live
// [Subscription]. Subscribers never block the pump: one that falls
// [subscriberBuffer] chunks behind is dropped. A raw handle has at most one
// subscriber; attaching again supersedes the previous one. Multiplexed
// handles accept many.
//
// # Errors
//
// Operations return [*Error] values carrying a [Kind] and the id or
// session name involved. Write and Resize report benign races (the handle
// is already gone) as a false result rather than an error. When the PTY
// probe fails at construction, every operation returns [ErrUnavailable].
//
// # Log Prefixes
//
// The manager logs at the [terminal] prefix.
package terminal
