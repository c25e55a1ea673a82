/*
Package session implements the session lifecycle core of the Bower host.

It provides the Registry, which lazily creates exactly one session per
identifier even under concurrent requests (single-flight creation), tears down
idle sessions with re-validation against races, and mediates exclusive access
to each session's document across application-supplied lifecycle hooks.

The Context type is the per-session handle hooks receive: during creation it
grants direct document access (nothing else can reach the document yet), and
once the session exists it delegates to the session's document lock. The
ServerContext type is the process-wide facade through which hooks register
next-tick, timeout, and periodic callbacks.
*/
package session
