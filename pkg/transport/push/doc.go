/*
Package push implements the websocket event channel.

The client dials the stream endpoint with the job id as a query parameter
and a bearer token resolved fresh on every attempt, then feeds each parsed
frame to the OnEvent callback. It carries no interpretation logic of its
own; ordering, deduplication and merge decisions all belong to the
reconciler behind the callback.

Connection loss and dial failure share one recovery path: the consecutive
failure counter increments, and either the next attempt is scheduled with
exponential backoff and ±25% jitter, or, once the counter reaches the
configured budget, OnExhausted fires exactly once and the client goes
quiet. A successful handshake resets the counter to zero. Unparsable
frames are dropped without touching the counter, since a connection that
delivers garbage is still a live connection.

Close is idempotent and cancels any scheduled reconnect, so no timer fires
after the owner has torn the channel down.
*/
package push
