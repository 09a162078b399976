package api

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samcharles93/locus/internal/engine"
	"github.com/samcharles93/locus/internal/features"
	"github.com/samcharles93/locus/internal/pipeline"
)

// PredictionService serializes access to a single engine. Requests run to
// completion one at a time.
type PredictionService struct {
	mu       sync.Mutex
	pipeline *pipeline.Pipeline
	info     func() engine.Info
}

func NewPredictionService(p *pipeline.Pipeline, info func() engine.Info) *PredictionService {
	return &PredictionService{pipeline: p, info: info}
}

func (s *PredictionService) Predict(ctx context.Context, req *PredictRequest) (pipeline.Report, error) {
	switch {
	case req.Record != nil && req.Features != nil:
		return pipeline.Report{}, newInvalidRequest("set either record or features, not both")
	case req.Record == nil && req.Features == nil:
		return pipeline.Report{}, newInvalidRequest("record or features is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		rep pipeline.Report
		err error
	)
	if req.Record != nil {
		rep, err = s.pipeline.Process(ctx, *req.Record)
	} else {
		rep, err = s.pipeline.ProcessVector(ctx, features.Vector(req.Features))
	}
	if err == nil {
		return rep, nil
	}

	var pe *features.ParseError
	var fe *features.FieldError
	switch {
	case errors.As(err, &pe), errors.As(err, &fe), errors.Is(err, engine.ErrInputLength):
		return pipeline.Report{}, newInvalidRequest(err.Error())
	}
	return pipeline.Report{}, fmt.Errorf("predict: %w", err)
}

func (s *PredictionService) Info() engine.Info {
	if s.info == nil {
		return engine.Info{State: engine.StateUninitialized.String()}
	}
	return s.info()
}
