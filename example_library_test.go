package bower_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/bower"
	"github.com/aretw0/bower/pkg/adapters/memory"
	"github.com/aretw0/bower/pkg/document"
	"github.com/aretw0/bower/pkg/ports"
)

// ExampleNew_durable demonstrates durable sessions: with a snapshot store
// attached, a discarded session's document is restored the next time the same
// session id is created.
func ExampleNew_durable() {
	store := memory.NewStore()
	app := ports.ApplicationFuncs{
		InitDocument: func(doc *document.Document) error {
			doc.Set("visits", 0)
			return nil
		},
	}

	host, err := bower.New(app,
		bower.WithSweepInterval(0),
		bower.WithSnapshotStore(store),
	)
	if err != nil {
		log.Fatal(err)
	}
	if err := host.Load(); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	s, err := host.CreateSession(ctx, "visitor-42")
	if err != nil {
		log.Fatal(err)
	}
	err = s.WithDocumentLocked(ctx, func(doc *document.Document) error {
		doc.Set("visits", 3)
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	// Discard the session; the document is saved on the way out.
	if err := host.RequestExpiration("visitor-42"); err != nil {
		log.Fatal(err)
	}
	if _, err := host.CleanupSessions(ctx); err != nil {
		log.Fatal(err)
	}

	// Recreating the session restores the saved document.
	revived, err := host.CreateSession(ctx, "visitor-42")
	if err != nil {
		log.Fatal(err)
	}
	visits, _ := revived.Document().Get("visits")
	fmt.Printf("Visits: %d\n", visits)

	if err := host.Unload(ctx); err != nil {
		log.Fatal(err)
	}
	// Output:
	// Visits: 3
}
