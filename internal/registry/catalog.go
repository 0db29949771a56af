package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/aidanlsb/moltrack/internal/query"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/store"
)

// Catalog exposes registered properties to the query compiler. Every
// lookup reads the store, so a compile never sees a stale copy.
func (r *Registry) Catalog(ctx context.Context) query.Catalog {
	return catalog{ctx: ctx, r: r}
}

type catalog struct {
	ctx context.Context
	r   *Registry
}

func (c catalog) Property(et schema.EntityType, name string) (*schema.Property, bool, error) {
	e, err := c.r.store.Entry(c.ctx, et, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("look up property %s of %s: %w", name, et, err)
	}
	if e.Kind != schema.KindProperty {
		return nil, false, nil
	}
	p := e.Property
	return &p, true, nil
}
