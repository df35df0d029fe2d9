/*
Package events implements the notification contract between the reconciler
and the callers observing an enrichment job.

The events package is a small fan-out dispatcher. The reconciler publishes
exactly one notification per accepted state mutation; the notifier delivers
it to every registered subscription on a single dispatch goroutine, in
publish order.

# Architecture

	Reconciler ──EmitX()──▶ notify channel (buffer: 100)
	                              │
	                        dispatch loop
	                              │
	          ┌───────────────────┼───────────────────┐
	   Subscription A       Subscription B       Subscription C
	   (handler set)        (handler set)        (handler set)

# Subscriptions

Subscribe returns a stable *Subscription handle. The handler set inside the
handle is mutable via Update, so a caller that re-registers its callbacks
(a UI re-render, say) keeps the same subscription identity and none of the
underlying connection state is disturbed.

Handlers with nil callbacks skip the corresponding transitions. All
subscribers see the same notification sequence; there is no per-subscriber
filtering or buffering.

# Notification Kinds

	started              job left idle and began enriching
	progress             counters advanced
	component.completed  one line item finished successfully
	component.failed     one line item failed or was not found
	complete             job reached a terminal status
	error                caller-visible failure (job failure, failover)

# Usage

	notifier := events.NewNotifier()
	notifier.Start()
	defer notifier.Stop()

	sub := notifier.Subscribe(events.Handler{
		OnProgress: func(s *types.ProgressState) {
			fmt.Printf("%d/%d\n", s.EnrichedItems, s.TotalItems)
		},
	})
	defer notifier.Unsubscribe(sub)

# See Also

  - pkg/reconciler for the single publisher
  - pkg/tracker for the public subscribe surface
*/
package events
