/*
Package transport holds what the two channel clients share: the bearer
credential contract and the snapshot query client.

CredentialProvider abstracts where the bearer token comes from. Both the
push handshake and every snapshot fetch resolve it synchronously right
before the request, so short-lived tokens stay fresh without the transports
knowing how they rotate. StaticCredentials covers the fixed-token case.

SnapshotClient issues the GET against /v1/jobs/{id}/progress. The same
client serves the baseline fetch at session start and every poll-mode tick;
both paths therefore agree on one authoritative source.

The channel implementations live in the push and poll subpackages.
*/
package transport
