package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/miradorstack/mirador-relay/internal/engine"
	"github.com/miradorstack/mirador-relay/internal/models"
)

// RemoteReporter forwards failure events to a relay server so several CI jobs share one
// dedup backend. It satisfies the same Report contract as the in-process driver.
type RemoteReporter struct {
	conn   *grpc.ClientConn
	client *IncidentRelayClient
}

// DialRemote connects to a relay server. Connections are plaintext; run the relay behind
// the CI network boundary or a TLS-terminating proxy.
func DialRemote(address string, opts ...grpc.DialOption) (*RemoteReporter, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", address, err)
	}
	return &RemoteReporter{conn: conn, client: NewIncidentRelayClient(conn)}, nil
}

// Report sends event and decodes the outcome.
func (r *RemoteReporter) Report(ctx context.Context, event models.FailureEvent) (engine.Outcome, error) {
	resp, err := r.client.ReportFailure(ctx, ToStructFailureEvent(event))
	if err != nil {
		return engine.Outcome{}, err
	}
	return FromStructOutcome(resp), nil
}

// Close releases the connection.
func (r *RemoteReporter) Close() error {
	return r.conn.Close()
}
