/*
Package reconciler merges all inbound progress signals into one canonical
state per tracked enrichment job.

The reconciler is the only component allowed to mutate a job's
ProgressState. Both transports feed it: the push channel delivers
StreamEvent envelopes, the snapshot endpoint delivers authoritative
ProgressState snapshots (baseline fetch and poll fallback). Delivery across
the two sources is at-least-once and unordered, so every write passes a
merge rule before it can take effect.

# Merge Rules

Snapshots (ApplySnapshot):
  - Read from the store of record, so they always supersede prior state
  - Suppressed only when nothing observable changed or the job is already
    terminal

Push events (ApplyEvent):
  - Duplicate event ids are suppressed inside a bounded dedup window
  - A progress payload is accepted only when every counter is
    monotonically non-decreasing, or it carries the job into a terminal
    status; anything else is a stale or reordered delivery and is vetoed
  - Component updates merge into the ledger last-writer-wins by the
    server-assigned update time

Terminal absorption: once completed or failed is accepted, every further
input from either transport is a no-op, and the registered TerminalFunc is
invoked so the supervisor can close the active transport.

# Notifications

Exactly one notification fires per accepted mutation, chosen by the
semantic transition: started, progress, component.completed,
component.failed, complete, or error. A job failure surfaces through
OnError wrapping types.ErrJobFailed; successful completion surfaces through
OnComplete. Suppressed or vetoed input never produces a notification.

# Concurrency

Apply methods may be called from any transport goroutine; a single mutex
serializes them so the reconciler remains the one logical writer. The
TerminalFunc runs on its own goroutine to keep transport teardown from
re-entering the reconciler lock.

# See Also

  - pkg/ledger for the component merge semantics
  - pkg/supervisor for who feeds the reconciler
*/
package reconciler
