package subscription

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/bookrent/pkg/cache"
)

// PlanSource loads the full plan list.
type PlanSource interface {
	LoadPlans(ctx context.Context) ([]Plan, error)
}

// StaticSource serves a fixed plan list.
type StaticSource []Plan

func (s StaticSource) LoadPlans(context.Context) ([]Plan, error) {
	return slices.Clone(s), nil
}

// FileSource reads plans from a YAML document of the form:
//
//	plans:
//	  - id: standard
//	    name: Standard
//	    price: 500
//	    currency: 980
//	    max_items: 3
//	    duration_months: 1
type FileSource struct {
	Path string
}

func (s FileSource) LoadPlans(context.Context) ([]Plan, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	return doc.Plans, nil
}

// SourceFromConfig returns a FileSource when a plans file is configured and
// the built-in plans otherwise.
func SourceFromConfig(cfg Config) PlanSource {
	if strings.TrimSpace(cfg.PlansFile) != "" {
		return FileSource{Path: cfg.PlansFile}
	}
	return StaticSource(DefaultPlans())
}

const catalogKey = "plans"

// Catalog serves plans through a TTL cache over a PlanSource.
type Catalog struct {
	cache *cache.Cache[string, map[string]Plan]
}

// NewCatalog panics on a nil source.
func NewCatalog(src PlanSource, ttl time.Duration) *Catalog {
	if src == nil {
		panic("subscription: nil plan source")
	}
	load := func(ctx context.Context, _ string) (map[string]Plan, error) {
		plans, err := src.LoadPlans(ctx)
		if err != nil {
			return nil, err
		}
		if len(plans) == 0 {
			return nil, errors.Join(ErrFailedToLoadPlans, errors.New("no plans defined"))
		}
		byID := make(map[string]Plan, len(plans))
		for _, p := range plans {
			if err := p.Validate(); err != nil {
				return nil, err
			}
			if _, dup := byID[p.ID]; dup {
				return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("duplicate plan id %q", p.ID))
			}
			byID[p.ID] = p
		}
		return byID, nil
	}
	return &Catalog{cache: cache.New(1, ttl, load)}
}

// Plan returns the plan with the given id or ErrPlanNotFound.
func (c *Catalog) Plan(ctx context.Context, id string) (Plan, error) {
	plans, err := c.cache.Get(ctx, catalogKey)
	if err != nil {
		return Plan{}, err
	}
	p, ok := plans[strings.TrimSpace(id)]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// Plans returns all plans ordered by price.
func (c *Catalog) Plans(ctx context.Context) ([]Plan, error) {
	plans, err := c.cache.Get(ctx, catalogKey)
	if err != nil {
		return nil, err
	}
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Plan) int {
		return cmp.Or(cmp.Compare(a.Price, b.Price), strings.Compare(a.ID, b.ID))
	})
	return out, nil
}

// Reload loads and validates the plans from the source, then swaps them in.
// A failed load leaves the previous plans in place.
func (c *Catalog) Reload(ctx context.Context) ([]Plan, error) {
	if _, err := c.cache.Refresh(ctx, catalogKey); err != nil {
		return nil, err
	}
	return c.Plans(ctx)
}

// OnReload registers fn to run after each successful Reload.
func (c *Catalog) OnReload(fn func()) {
	if fn == nil {
		return
	}
	c.cache.OnInvalidate(func(string) { fn() })
}
