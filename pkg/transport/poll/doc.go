/*
Package poll implements the snapshot fallback channel.

The poller fetches the authoritative progress snapshot on a fixed cadence,
starting with an immediate fetch so a failover produces fresh state within
one interval. Each fetch is an independent idempotent request: failures
are logged and absorbed, and the next tick simply tries again. Ticks that
arrive while a fetch is still in flight are skipped rather than queued, so
a slow server never builds a request backlog.

When a snapshot reports a terminal job status the poller stops its own
ticker; the consumer sees the terminal snapshot through OnSnapshot like
any other and owns whatever teardown follows.
*/
package poll
