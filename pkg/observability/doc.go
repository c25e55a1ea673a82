/*
Package observability provides Prometheus instrumentation for a session host.

It exposes the session lifecycle (creations, discards, revivals, hook
failures, cleanup sweeps) as metrics, fed through the host's lifecycle event
observers rather than by instrumenting the registry itself.
*/
package observability
