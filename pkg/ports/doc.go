/*
Package ports defines the driven ports (interfaces) for the Bower session host.

These interfaces decouple the session core from external implementations,
allowing the registry to work with any application, callback scheduler, and
snapshot storage backend.

# Key Interfaces

  - Application: the lifecycle hook surface supplied by the hosted application.
  - ServerContext / SessionContext: the capability surfaces handed to hooks.
  - Scheduler: next-tick, delayed, and periodic callback registration.
  - SnapshotStore: persisting and loading document snapshots.
  - DistributedLocker: cross-replica coordination for the cleanup sweep.
*/
package ports
