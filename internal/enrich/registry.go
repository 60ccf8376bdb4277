// Package enrich implements the source enricher registry (§4.F): named
// per-indexer adapters that decorate raw aggregator sources with extra
// metadata and flags before ranking. Each adapter runs in isolation —
// one failing adapter never prevents the others, or the core, from
// proceeding.
package enrich

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/bookarr/bookarr/internal/models"
)

// Container is passed to every adapter call so it can stash per-book
// setup state (e.g. a search result from the indexer's own API) between
// Setup and Edit without the registry knowing its shape.
type Container struct {
	data map[string]any
}

func NewContainer() *Container {
	return &Container{data: make(map[string]any)}
}

func (c *Container) Set(key string, value any) { c.data[key] = value }
func (c *Container) Get(key string) (any, bool) {
	v, ok := c.data[key]
	return v, ok
}

// Adapter is one named indexer enricher (§4.F).
type Adapter interface {
	Name() string
	Setup(ctx context.Context, book *models.Book, container *Container) error
	Matches(source *models.Source, container *Container) bool
	Edit(source *models.Source, container *Container)
}

// Registry runs a fixed, ordered list of adapters over a raw source set.
type Registry struct {
	adapters []Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Enrich runs every adapter's Setup once per book, then for each source
// lets every adapter that Matches Edit it, in registry order. A panic or error
// from one adapter is logged and skipped; it never aborts enrichment of
// the remaining sources or adapters.
func (r *Registry) Enrich(ctx context.Context, book *models.Book, sources []models.Source) []models.Source {
	container := NewContainer()

	for _, a := range r.adapters {
		if err := r.safeSetup(ctx, a, book, container); err != nil {
			log.Warn().Err(err).Str("adapter", a.Name()).Msg("enrich: setup failed, adapter skipped")
		}
	}

	out := make([]models.Source, len(sources))
	copy(out, sources)

	for i := range out {
		for _, a := range r.adapters {
			if r.safeMatches(a, &out[i], container) {
				r.safeEdit(a, &out[i], container)
			}
		}
	}
	return out
}

func (r *Registry) safeSetup(ctx context.Context, a Adapter, book *models.Book, container *Container) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicErr(rec)
		}
	}()
	return a.Setup(ctx, book, container)
}

func (r *Registry) safeMatches(a Adapter, source *models.Source, container *Container) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn().Interface("panic", rec).Str("adapter", a.Name()).Msg("enrich: matches panicked")
			ok = false
		}
	}()
	return a.Matches(source, container)
}

func (r *Registry) safeEdit(a Adapter, source *models.Source, container *Container) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn().Interface("panic", rec).Str("adapter", a.Name()).Msg("enrich: edit panicked")
		}
	}()
	a.Edit(source, container)
}

func panicErr(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("adapter panicked: %v", rec)
}
