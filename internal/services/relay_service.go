package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-relay/internal/api"
	"github.com/miradorstack/mirador-relay/internal/engine"
	"github.com/miradorstack/mirador-relay/internal/models"
	"github.com/miradorstack/mirador-relay/internal/utils"
)

// Reporter runs the relay pipeline for one event.
type Reporter interface {
	Report(ctx context.Context, event models.FailureEvent) (engine.Outcome, error)
}

// RelayService implements the gRPC IncidentRelay service.
type RelayService struct {
	logger    *slog.Logger
	reporter  Reporter
	latencies *utils.LatencyTracker
}

// NewRelayService constructs the relay service facade.
func NewRelayService(logger *slog.Logger, reporter Reporter) *RelayService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelayService{
		logger:    logger,
		reporter:  reporter,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// ReportFailure runs the pipeline for a remote failure event.
func (s *RelayService) ReportFailure(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.reporter == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}

	event, err := api.FromStructFailureEvent(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Debug("ReportFailure called", slog.String("source", event.Source), slog.String("trace_id", event.TraceID))

	start := time.Now()
	outcome, err := s.reporter.Report(ctx, event)
	duration := time.Since(start)
	if err != nil {
		return nil, toStatus(err)
	}
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("report latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	return api.ToStructOutcome(outcome), nil
}

// LatencyP95 returns the current p95 report latency.
func (s *RelayService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, utils.ErrSchemaViolation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, utils.ErrAuthenticationMissing):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
