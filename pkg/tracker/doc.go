/*
Package tracker is the caller-facing surface of the library.

A Tracker owns one tracking session end to end. Construction wires the
notifier, the reconciler with its component ledger, the snapshot client
and the transport supervisor but opens nothing, so a caller subscribes
first and then calls Start; no transition can fire before the handler is
in place. Start is a no-op when tracking is disabled in the config. The
handle exposes exactly what a caller needs:
Subscribe and Unsubscribe for transition callbacks, CurrentState and
Components for synchronous reads, ConnectionState for transport health,
Reconnect to bounce the channel, and Dispose to tear everything down.
Dispose is idempotent and leaves the final state readable.

Registry shares sessions between callers. Two screens watching the same
job attach to one tracker and one pair of transports; subscriptions are
refcounted and the last detach disposes the session. Subscription handles
stay stable across handler updates, so a caller can re-register its
callbacks without losing its place in the registry.
*/
package tracker
