package loam

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/loam"

	"github.com/aretw0/bower/pkg/document"
	"github.com/aretw0/bower/pkg/domain"
	"github.com/aretw0/bower/pkg/ports"
)

// titleSeedID names the seed whose frontmatter title becomes the document
// title of every new session.
const titleSeedID = "index"

// SeedMetadata is the frontmatter of one seed document. The typed repository
// decodes it through the mapstructure tags.
type SeedMetadata struct {
	ID     string         `json:"id" mapstructure:"id"`
	Title  string         `json:"title,omitempty" mapstructure:"title"`
	Fields map[string]any `json:"fields,omitempty" mapstructure:"fields"`
}

type seedEntry struct {
	id      string
	content string
	fields  map[string]any
}

// SeedApplication implements ports.Application on top of a Loam content
// repository. Every new session document starts as a copy of the seed set:
// one entry per seed file, holding its content and frontmatter fields.
type SeedApplication struct {
	ports.NopApplication

	repo *loam.TypedRepository[SeedMetadata]
	log  *slog.Logger

	mu    sync.RWMutex
	seeds []seedEntry
	title string
}

type Option func(*SeedApplication)

// WithLogger sets the logger used by refresh and watch.
func WithLogger(log *slog.Logger) Option {
	return func(a *SeedApplication) {
		if log != nil {
			a.log = log
		}
	}
}

// New creates a seed application over an existing typed repository and loads
// the seed set once.
func New(repo *loam.TypedRepository[SeedMetadata], opts ...Option) (*SeedApplication, error) {
	a := &SeedApplication{
		repo: repo,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return a, nil
}

// NewFromDir initializes a Loam repository in dir and builds a seed
// application over it.
func NewFromDir(dir string, opts ...Option) (*SeedApplication, error) {
	repo, err := loam.Init(dir, loam.WithVersioning(false))
	if err != nil {
		return nil, fmt.Errorf("init seed repository: %w", err)
	}
	return New(loam.NewTypedRepository[SeedMetadata](repo), opts...)
}

// Refresh reloads the seed set from the repository. Sessions created after it
// returns observe the new seeds; existing sessions are untouched.
func (a *SeedApplication) Refresh(ctx context.Context) error {
	docs, err := a.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list seeds: %w", err)
	}

	seen := make(map[string]string)
	seeds := make([]seedEntry, 0, len(docs))
	title := ""

	for _, doc := range docs {
		rawID := doc.Data.ID
		if rawID == "" {
			rawID = doc.ID
		}
		id := trimExtension(rawID)

		if existing, ok := seen[id]; ok {
			return fmt.Errorf("collision detected: seed ID %q is defined in both %q and %q", id, existing, doc.ID)
		}
		seen[id] = doc.ID

		if id == titleSeedID && doc.Data.Title != "" {
			title = doc.Data.Title
		}

		seeds = append(seeds, seedEntry{
			id:      id,
			content: strings.TrimSpace(doc.Content),
			fields:  normalizeMap(doc.Data.Fields),
		})
	}

	// List order follows the filesystem; a fixed order keeps session
	// documents reproducible.
	sort.Slice(seeds, func(i, j int) bool { return seeds[i].id < seeds[j].id })

	a.mu.Lock()
	a.seeds = seeds
	a.title = title
	a.mu.Unlock()

	a.log.Debug("seed set refreshed", "seeds", len(seeds), "title", title)
	return nil
}

// SeedIDs returns the IDs of the current seed set in document order.
func (a *SeedApplication) SeedIDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ids := make([]string, 0, len(a.seeds))
	for _, s := range a.seeds {
		ids = append(ids, s.id)
	}
	return ids
}

// InitializeDocument copies the seed set into a fresh session document.
func (a *SeedApplication) InitializeDocument(doc *document.Document) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.title != "" {
		doc.SetTitle(a.title)
	}

	for _, s := range a.seeds {
		entry := map[string]any{"content": s.content}
		// Each session gets its own copy so edits never leak into the
		// shared seed set.
		for k, v := range domain.CloneMap(s.fields) {
			entry[k] = v
		}
		doc.Set(s.id, entry)
	}
	return nil
}

// Watch follows repository change events, refreshing the seed set on each
// one, and forwards the changed seed IDs. Intended for develop mode.
func (a *SeedApplication) Watch(ctx context.Context) (<-chan string, error) {
	events, err := a.repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start seed watcher: %w", err)
	}

	ch := make(chan string, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				if err := a.Refresh(ctx); err != nil {
					a.log.Error("seed refresh failed", "err", err)
				}
				select {
				case ch <- evt.ID:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

// normalizeMap rebuilds frontmatter values with string keys throughout. YAML
// decoding can surface nested maps as map[any]any.
func normalizeMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return normalizeMap(val)
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[fmt.Sprintf("%v", k)] = normalizeValue(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return val
	}
}
