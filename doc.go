/*
Package bower manages the runtime lifecycle of server-side application
sessions: creation, shared access, idle tracking, and coordinated teardown.

It implements a "single-flight sessions with race-free discard" architecture,
separating the session registry (bookkeeping) from the application hooks
(behavior) and the document (state).

# Concept

Bower treats every client-visible session as a live document plus bookkeeping.
The Host manages session construction, the callback loop, and the periodic
cleanup sweep, while your application ("the Application") decides what a
document contains and reacts to lifecycle transitions through hooks. This
Hexagonal Architecture allows Bower to be embedded in any interface: HTTP
server, MCP server, or your own transport.

# Key Features

  - Single-Flight Creation: Concurrent requests for the same session share one
    construction; the document initializes exactly once.
  - Race-Free Discard: Idle sessions are torn down with the destroy hook
    outside the document lock, and eligibility is re-validated afterwards so a
    session that "came back to life" survives.
  - Fail-Open Hooks: A failing or panicking application hook is logged and
    reported, never allowed to wedge the lifecycle.
  - Durable Sessions: Plug in a snapshot store and documents survive discard
    and restore on the next creation.

# Usage

Implement the Application hooks (embed NopApplication to pick only the ones
you need), build a Host, and load it.

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/bower"
		"github.com/aretw0/bower/pkg/document"
		"github.com/aretw0/bower/pkg/ports"
	)

	type app struct {
		ports.NopApplication
	}

	func (app) InitializeDocument(doc *document.Document) error {
		doc.SetTitle("hello")
		doc.Set("count", 0)
		return nil
	}

	func main() {
		host, err := bower.New(app{})
		if err != nil {
			log.Fatal(err)
		}
		if err := host.Load(); err != nil {
			log.Fatal(err)
		}
		defer host.Unload(context.Background())

		ctx := context.Background()
		s, err := host.CreateSession(ctx, bower.NewSessionID())
		if err != nil {
			log.Fatal(err)
		}

		err = s.WithDocumentLocked(ctx, func(doc *document.Document) error {
			doc.Set("count", 1)
			return nil
		})
		if err != nil {
			log.Fatal(err)
		}
	}
*/
package bower
