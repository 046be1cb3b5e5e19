package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/charcomplete/internal/inference"
	"github.com/samcharles93/charcomplete/internal/logger"
)

const (
	DefaultMaxSteps = 1000
	MaxTemperature  = 2.0
)

type CompletionService struct {
	provider EngineProvider
	maxSteps int
	log      logger.Logger
	clock    func() time.Time
}

func NewCompletionService(provider EngineProvider, log logger.Logger) *CompletionService {
	if log == nil {
		log = logger.Default()
	}
	return &CompletionService{
		provider: provider,
		maxSteps: DefaultMaxSteps,
		log:      log,
		clock:    time.Now,
	}
}

// SetMaxSteps bounds the steps a single request may ask for.
func (s *CompletionService) SetMaxSteps(n int) {
	if n > 0 {
		s.maxSteps = n
	}
}

func (s *CompletionService) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	var result *inference.Result
	err := s.provider.WithEngine(ctx, req.Model, func(engine inference.Engine, defaults inference.GenDefaults) error {
		genReq := inference.ResolveRequest(inference.RequestOptions{
			Text:        req.Text,
			Steps:       req.Steps,
			Seed:        req.Seed,
			Temperature: req.Temperature,
			TopK:        req.TopK,
			Greedy:      req.Greedy,
			Sanitize:    req.Sanitize,
		}, defaults)
		if genReq.Steps > s.maxSteps {
			return newInvalidRequest("steps", fmt.Sprintf("steps must be at most %d", s.maxSteps))
		}
		res, err := engine.Complete(ctx, &genReq)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		s.log.Warn("completion failed", "model", req.Model, "error", err)
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = "default"
	}
	return &CompletionResponse{
		ID:         newCompletionID(),
		Object:     "text_completion",
		Created:    s.clock().Unix(),
		Model:      model,
		Completion: result.Text,
		Window:     result.Window,
		Usage: CompletionUsage{
			Steps:      result.Stats.Steps,
			DurationMS: float64(result.Stats.Duration.Microseconds()) / 1000,
			CPS:        result.Stats.CPS,
		},
	}, nil
}

func (s *CompletionService) validate(req *CompletionRequest) error {
	if req == nil {
		return newInvalidRequest("", "request body is required")
	}
	if req.Steps != nil {
		switch {
		case *req.Steps < 0:
			return newInvalidRequest("steps", "steps must not be negative")
		case *req.Steps > s.maxSteps:
			return newInvalidRequest("steps", fmt.Sprintf("steps must be at most %d", s.maxSteps))
		}
	}
	if req.Temperature != nil && *req.Temperature > MaxTemperature {
		return newInvalidRequest("temperature", fmt.Sprintf("temperature must be at most %g", MaxTemperature))
	}
	if req.TopK != nil && *req.TopK < 0 {
		return newInvalidRequest("top_k", "top_k must not be negative")
	}
	return nil
}

func newCompletionID() string {
	return "cmpl-" + uuid.NewString()
}
