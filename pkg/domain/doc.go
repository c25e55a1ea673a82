/*
Package domain contains the core domain models for the Bower session host.

It defines the error taxonomy shared by the registry and the persistence
adapters, and the Snapshot record that captures a session document for
storage. This package is kept pure and free of external dependencies like
I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Snapshot: the persisted form of a session document (state, title, revision).
  - Sentinel errors: ErrSessionNotFound, ErrEmptySessionID and friends, matched
    with errors.Is across package boundaries.
*/
package domain
