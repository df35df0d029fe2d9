/*
Package supervisor owns the transport lifecycle for one tracking session.

The session comes up in a fixed order. The supervisor first fetches the
baseline snapshot, retrying on the poll cadence until the server answers,
and seeds the reconciler with it. Only then does the push channel open, so
the subscriber always sees current ground truth before live events start
arriving.

While the push channel is healthy the supervisor merely relays: events go
to the reconciler, connection transitions update the reported connection
state. When the push client spends its consecutive-failure budget the
supervisor performs the one-way failover: it surfaces the exhaustion error
to subscribers, closes the push client, and starts the poller. The session
never climbs back to push on its own; Reconnect is the single explicit
call that closes the active channel and re-arms push with a fresh budget.

Terminal handling runs through the reconciler's terminal hook. Whichever
channel delivered the final transition, the supervisor closes both
transports exactly once, leaving the final state readable until the owner
calls Stop.
*/
package supervisor
