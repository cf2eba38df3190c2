// Package classifier wraps the gRPC connection to the external event
// classifier service. The service owns tactic labeling and threat scoring;
// this client only carries the call.
package classifier

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// #region types

// Request carries the raw event context sent for classification.
type Request struct {
	TriggerKey string `json:"trigger_key"`
	Hash       string `json:"hash"`
	Context    string `json:"context"`
}

// Verdict is the classifier's answer for one event.
type Verdict struct {
	TacticLabel string  `json:"tactic_label"`
	Confidence  float64 `json:"confidence"`
	ThreatScore float64 `json:"threat_score"`
	IsThreat    bool    `json:"is_threat"`
}

// #endregion types

// #region client

// classifyMethod is the full gRPC method name served by the classifier.
const classifyMethod = "/hd4.v1.Classifier/Classify"

// invoker is the slice of grpc.ClientConn the client needs. Injected in
// tests so no real connection is required.
type invoker interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
}

// Client is the gRPC classifier client. Messages travel as JSON via the
// registered codec (see codec.go); no generated bindings are involved.
type Client struct {
	conn *grpc.ClientConn
	inv  invoker
}

// NewClient connects to the classifier service.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, inv: conn}, nil
}

// NewClientWithInvoker creates a Client with an injected call path.
// Used for testing without a real gRPC connection.
func NewClientWithInvoker(inv invoker) *Client {
	return &Client{inv: inv}
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion client

// #region classify

// Classify sends the event context and returns the verdict. Honors the
// caller's context deadline; timeouts surface as errors for the orchestrator
// to degrade on.
func (c *Client) Classify(ctx context.Context, req Request) (Verdict, error) {
	var v Verdict
	if err := c.inv.Invoke(ctx, classifyMethod, &req, &v); err != nil {
		return Verdict{}, fmt.Errorf("classify rpc: %w", err)
	}
	return v, nil
}

// #endregion classify
