package meteo

import (
	"context"

	"github.com/chrissnell/sebal/internal/types"
)

// StaticProvider serves configured conditions, optionally overridden per
// acquisition date ("2006-01-02").
type StaticProvider struct {
	Default Context
	ByDate  map[string]Context
	Station Station
}

// ContextFor implements Provider.
func (p *StaticProvider) ContextFor(ctx context.Context, meta types.SceneMetadata) (Context, error) {
	if err := ctx.Err(); err != nil {
		return Context{}, err
	}

	c := p.Default
	if o, ok := p.ByDate[meta.Acquired.UTC().Format("2006-01-02")]; ok {
		c = o
	}
	if err := c.Validate(); err != nil {
		return Context{}, err
	}
	return Complete(c, p.Station, meta.Acquired, 0, 0), nil
}
