package visibilityrpc

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
	"github.com/signalsfoundry/constellation-optimizer/internal/observability"
	"github.com/signalsfoundry/constellation-optimizer/model"
	"github.com/signalsfoundry/constellation-optimizer/timectrl"
	"github.com/signalsfoundry/constellation-optimizer/visibility"
)

// Client is a visibility.Source backed by a remote VisibilityService. It is
// safe for concurrent use.
type Client struct {
	conn    grpc.ClientConnInterface
	closer  func() error
	limiter *rate.Limiter
	timeout time.Duration
	log     logging.Logger
	metrics *observability.RPCCollector
}

var _ visibility.Source = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimit paces outgoing calls to perSecond with the given burst. A
// non-positive rate disables pacing.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithTimeout bounds every call; zero leaves only the caller's deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

func WithClientLogger(l logging.Logger) ClientOption {
	return func(c *Client) { c.log = logging.OrNoop(l) }
}

// WithClientMetrics records client-side RPC metrics when dialling.
func WithClientMetrics(m *observability.RPCCollector) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient wraps an existing connection. Interceptors configured on conn are
// left as they are.
func NewClient(conn grpc.ClientConnInterface, opts ...ClientOption) *Client {
	c := &Client{conn: conn, log: logging.Noop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to a VisibilityService at addr over plaintext with tracing,
// request-ID propagation and, if configured, metrics.
func Dial(addr string, opts ...ClientOption) (*Client, error) {
	c := NewClient(nil, opts...)
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(
			RequestIDUnaryClientInterceptor(),
			c.metrics.UnaryClientInterceptor(),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("dial visibility service %s: %w", addr, err)
	}
	c.conn = conn
	c.closer = conn.Close
	return c, nil
}

// Close releases a connection opened by Dial.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// Events implements visibility.Source.
func (c *Client) Events(ctx context.Context, sat model.Satellite, points []model.GeodeticPoint, window timectrl.Window, threshold float64) ([]visibility.Event, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("visibility rate limit: %w", err)
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := encodeRequest(Request{Satellite: sat, Points: points, Window: window, Threshold: threshold})
	if err != nil {
		return nil, fmt.Errorf("encode visibility request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethodComputeEvents, req, resp); err != nil {
		c.log.Debug(ctx, "remote visibility failed",
			logging.String("satellite_id", sat.ID),
			logging.Err(err),
		)
		return nil, fmt.Errorf("visibility of %s: %w", sat.ID, err)
	}
	events, err := decodeResponse(resp, points)
	if err != nil {
		return nil, err
	}
	visibility.SortEvents(events)
	return events, nil
}
