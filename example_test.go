package bower_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/bower"
	"github.com/aretw0/bower/pkg/document"
	"github.com/aretw0/bower/pkg/ports"
)

// counterApp seeds every new session document with a counter.
type counterApp struct {
	ports.NopApplication
}

func (counterApp) InitializeDocument(doc *document.Document) error {
	doc.SetTitle("counter")
	doc.Set("count", 0)
	return nil
}

// ExampleNew demonstrates the basic session lifecycle: load the host, create a
// session, mutate its document under the lock, and tear everything down.
func ExampleNew() {
	host, err := bower.New(counterApp{}, bower.WithSweepInterval(0))
	if err != nil {
		log.Fatal(err)
	}
	if err := host.Load(); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	s, err := host.CreateSession(ctx, "example")
	if err != nil {
		log.Fatal(err)
	}

	// All compound document access goes through the lock.
	err = s.WithDocumentLocked(ctx, func(doc *document.Document) error {
		v, _ := doc.Get("count")
		doc.Set("count", v.(int)+1)
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	count, _ := s.Document().Get("count")
	fmt.Printf("Title: %s\n", s.Document().Title())
	fmt.Printf("Count: %d\n", count)

	// Expire the session and sweep it away.
	if err := host.RequestExpiration("example"); err != nil {
		log.Fatal(err)
	}
	discarded, err := host.CleanupSessions(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Discarded: %d\n", discarded)

	if err := host.Unload(ctx); err != nil {
		log.Fatal(err)
	}
	// Output:
	// Title: counter
	// Count: 1
	// Discarded: 1
}
