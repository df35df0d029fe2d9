/*
Package storage provides checkpoint persistence for tracked jobs.

The reconciler writes its latest accepted ProgressState and ledger entries
through to a Store after every mutation (best effort). A restarted process
can then report last-known progress without a network round trip.

# Store Interface

Store is small and job-scoped:

	SaveProgress / GetProgress    latest reconciled state per job
	SaveComponent / ListComponents ledger entries per job
	DeleteJob                     drop all checkpoint data for a job
	Close                         release the backing database

GetProgress returns ErrNotFound when a job has never checkpointed.

# BoltDB Implementation

BoltStore keeps two buckets in a single bomtrack.db file:

	progress     job_id            → JSON ProgressState
	components   job_id/component  → JSON ComponentUpdate

Values are JSON so the file is inspectable with bbolt's CLI tooling.

A Store is always constructed explicitly and handed to the tracker registry;
nothing in this package is ambient process state, so two registries in one
process can use separate databases without interfering.

# Usage

	store, err := storage.NewBoltStore(dataDir)
	if err != nil { ... }
	defer store.Close()

	state, err := store.GetProgress("job-123")
	if errors.Is(err, storage.ErrNotFound) {
		// never tracked on this machine
	}
*/
package storage
