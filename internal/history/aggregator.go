package history

import (
	"context"
	"sort"
	"sync"

	"github.com/aj47/acp-remote/internal/conversation"
	"github.com/aj47/acp-remote/internal/logging"
)

// SourceLocal tags conversations stored by this process itself.
const SourceLocal = "local"

// NativeLister supplies metadata for locally stored conversations. The
// conversation store implements it.
type NativeLister interface {
	ListMetadata() ([]conversation.Metadata, error)
}

// Aggregator merges external provider listings and local conversations into
// one view sorted by recency. A failing source contributes nothing; the
// merge itself never fails.
type Aggregator struct {
	providers []Provider
	native    NativeLister
	logger    logging.Logger
}

// NewAggregator builds an aggregator over providers and the local store.
func NewAggregator(providers []Provider, native NativeLister, logger logging.Logger) *Aggregator {
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("HistoryAggregator")
	}
	return &Aggregator{providers: providers, native: native, logger: logger}
}

// ListUnified fans out to every available provider plus the local store in
// parallel, tags each item with its source, and returns at most limit items
// sorted by UpdatedAt descending.
func (a *Aggregator) ListUnified(ctx context.Context, limit int) []Metadata {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		items []Metadata
	)

	collect := func(batch []Metadata) {
		mu.Lock()
		items = append(items, batch...)
		mu.Unlock()
	}

	for _, provider := range a.providers {
		if !provider.Available() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("history provider %s panicked: %v", provider.Name(), r)
				}
			}()
			listed, err := provider.ListMetadata(ctx, limit)
			if err != nil {
				a.logger.Warn("history provider %s failed, skipping: %v", provider.Name(), err)
				return
			}
			collect(listed)
		}()
	}

	if a.native != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local, err := a.native.ListMetadata()
			if err != nil {
				a.logger.Warn("local conversation listing failed, skipping: %v", err)
				return
			}
			collect(localMetadata(local))
		}()
	}

	wg.Wait()

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// Continue routes a continue request to the provider that owns source.
func (a *Aggregator) Continue(ctx context.Context, source string, opts ContinueOptions) ContinueResult {
	for _, provider := range a.providers {
		if provider.Name() == source {
			return provider.ContinueSession(ctx, opts)
		}
	}
	return ContinueResult{Error: "unknown history source: " + source}
}

// Load routes a full-session load to the provider that owns source.
func (a *Aggregator) Load(ctx context.Context, source, id string) (*Session, error) {
	for _, provider := range a.providers {
		if provider.Name() == source {
			return provider.LoadSession(ctx, id)
		}
	}
	return nil, nil
}

func localMetadata(local []conversation.Metadata) []Metadata {
	out := make([]Metadata, 0, len(local))
	for _, meta := range local {
		out = append(out, Metadata{
			ID:           meta.ID,
			Title:        meta.Title,
			CreatedAt:    meta.CreatedAt,
			UpdatedAt:    meta.UpdatedAt,
			Source:       SourceLocal,
			MessageCount: meta.MessageCount,
			Preview:      meta.Preview,
		})
	}
	return out
}
