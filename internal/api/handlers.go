package api

import (
	"context"
	"fmt"
	"math"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-relay/internal/engine"
	"github.com/miradorstack/mirador-relay/internal/models"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mirador.relay.v1.IncidentRelay"

const reportFailureMethod = "/" + ServiceName + "/ReportFailure"

// IncidentRelayServer is the server API for the IncidentRelay service.
type IncidentRelayServer interface {
	ReportFailure(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterIncidentRelayServer registers srv on s.
func RegisterIncidentRelayServer(s grpc.ServiceRegistrar, srv IncidentRelayServer) {
	s.RegisterService(&incidentRelayServiceDesc, srv)
}

func reportFailureHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IncidentRelayServer).ReportFailure(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: reportFailureMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IncidentRelayServer).ReportFailure(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var incidentRelayServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IncidentRelayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ReportFailure", Handler: reportFailureHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/relay/v1/relay.proto",
}

// IncidentRelayClient calls a remote relay.
type IncidentRelayClient struct {
	cc grpc.ClientConnInterface
}

// NewIncidentRelayClient wraps cc.
func NewIncidentRelayClient(cc grpc.ClientConnInterface) *IncidentRelayClient {
	return &IncidentRelayClient{cc: cc}
}

// ReportFailure sends one failure event to the relay.
func (c *IncidentRelayClient) ReportFailure(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, reportFailureMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// FromStructFailureEvent maps the request struct into a FailureEvent.
func FromStructFailureEvent(req *structpb.Struct) (models.FailureEvent, error) {
	if req == nil {
		return models.FailureEvent{}, fmt.Errorf("request is nil")
	}
	fields := req.GetFields()
	event := models.FailureEvent{
		Source:  stringField(fields, "source"),
		Log:     stringField(fields, "log"),
		TraceID: stringField(fields, "trace_id"),
		File:    stringField(fields, "file"),
		Command: stringField(fields, "command"),
	}
	if strings.TrimSpace(event.Source) == "" {
		return models.FailureEvent{}, fmt.Errorf("source is required")
	}
	if v, ok := fields["line"]; ok {
		n := v.GetNumberValue()
		if n < 0 || n > math.MaxInt32 || n != math.Trunc(n) {
			return models.FailureEvent{}, fmt.Errorf("line must be a non-negative integer")
		}
		event.Line = int(n)
	}
	return event, nil
}

// ToStructFailureEvent is the client-side encoding of event.
func ToStructFailureEvent(event models.FailureEvent) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"source":   structpb.NewStringValue(event.Source),
		"log":      structpb.NewStringValue(event.Log),
		"trace_id": structpb.NewStringValue(event.TraceID),
		"command":  structpb.NewStringValue(event.Command),
	}
	if event.File != "" {
		fields["file"] = structpb.NewStringValue(event.File)
	}
	if event.Line > 0 {
		fields["line"] = structpb.NewNumberValue(float64(event.Line))
	}
	return &structpb.Struct{Fields: fields}
}

// ToStructOutcome converts a pipeline outcome into the response struct.
func ToStructOutcome(out engine.Outcome) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ticket_key":  structpb.NewStringValue(out.TicketKey),
		"ticket_url":  structpb.NewStringValue(out.TicketURL),
		"fingerprint": structpb.NewStringValue(out.Fingerprint),
		"created":     structpb.NewBoolValue(out.Created),
		"occurrence":  structpb.NewNumberValue(float64(out.Occurrence)),
		"archive_url": structpb.NewStringValue(out.ArchiveURL),
		"mode":        structpb.NewStringValue(out.Mode),
	}}
}

// FromStructOutcome decodes a response struct on the client side.
func FromStructOutcome(resp *structpb.Struct) engine.Outcome {
	fields := resp.GetFields()
	return engine.Outcome{
		TicketKey:   stringField(fields, "ticket_key"),
		TicketURL:   stringField(fields, "ticket_url"),
		Fingerprint: stringField(fields, "fingerprint"),
		Created:     fields["created"].GetBoolValue(),
		Occurrence:  int64(fields["occurrence"].GetNumberValue()),
		ArchiveURL:  stringField(fields, "archive_url"),
		Mode:        stringField(fields, "mode"),
	}
}

func stringField(fields map[string]*structpb.Value, key string) string {
	return fields[key].GetStringValue()
}
