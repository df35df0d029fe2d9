/*
Package types defines the core data structures shared across bomtrack's
progress-tracking pipeline.

The types package is the foundation that all other packages build on. It has
no dependencies on other bomtrack packages and defines the wire-visible data
model plus the client-side error taxonomy.

# Core Types

ProgressState:
  - Canonical progress view of one enrichment job
  - Counter invariant: enriched + failed + pending <= total
  - PercentComplete is non-decreasing while Status is non-terminal
  - completed/failed are absorbing statuses

ComponentUpdate:
  - One line item's enrichment result, keyed by ComponentID
  - Idempotent; merged last-writer-wins by server-assigned UpdatedAt
  - A terminal per-component status never regresses to a non-terminal
    one unless the incoming record is strictly newer

StreamEvent:
  - Envelope delivered over the push channel
  - EventID is the dedup key; delivery is at-least-once and may reorder
  - Type selects which embedded payload is meaningful

ConnectionState:
  - Which transport is active (push/poll/none) and how healthy it is

# Status Lifecycles

Job: idle → connecting → enriching → {completed | failed}, with paused and
stopped as non-terminal side states. Component: pending → enriching →
{enriched | failed | not_found}.

# Error Taxonomy

Sentinel errors cover the failure classes the client distinguishes:

	ErrMalformedEvent  unparsable inbound payload, discarded
	ErrStaleUpdate     rejected by merge rules, suppressed
	ErrDisposed        data after disposal, silently dropped
	ErrJobFailed       server-reported job failure, surfaced once
	ErrPushExhausted   push retry budget spent, triggers failover

Callers test them with errors.Is; only ErrJobFailed and ErrPushExhausted
ever reach a notification handler.

# See Also

  - pkg/reconciler for how these types are merged
  - pkg/ledger for per-component bookkeeping
*/
package types
