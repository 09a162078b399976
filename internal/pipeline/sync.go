package pipeline

import (
	"context"
	"sync"

	"github.com/samcharles93/locus/internal/engine"
	"github.com/samcharles93/locus/internal/features"
)

type syncPredictor struct {
	mu sync.Mutex
	p  Predictor
}

// Synchronized wraps p so that concurrent callers invoke it one at a time.
// Use it when several pipelines share one engine.
func Synchronized(p Predictor) Predictor {
	return &syncPredictor{p: p}
}

func (s *syncPredictor) Invoke(ctx context.Context, v features.Vector) (engine.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Invoke(ctx, v)
}
