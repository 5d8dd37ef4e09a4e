package ai

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Paced spaces out calls to the wrapped Generator, for bulk jobs such as the
// weekly coaching messages.
type Paced struct {
	gen     Generator
	limiter *rate.Limiter
}

func NewPaced(gen Generator, every time.Duration) *Paced {
	return &Paced{gen: gen, limiter: rate.NewLimiter(rate.Every(every), 1)}
}

func (p *Paced) Generate(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return p.gen.Generate(ctx, prompt, jsonMode)
}
