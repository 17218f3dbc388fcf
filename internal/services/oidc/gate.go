package oidc

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloudshare/cloudshare-api/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultExemptRoutes are the path markers served without authentication
var DefaultExemptRoutes = []string{"/webhooks", "/public", "/download", "/health"}

// loopbackMarkers identify a local development host or origin
var loopbackMarkers = []string{"localhost", "127.0.0.1", "::1"}

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// RequestInfo is the part of an inbound request the gate looks at
type RequestInfo struct {
	Method        string
	Path          string
	Host          string
	Origin        string
	Authorization string
}

// RequestInfoFrom extracts the gate-relevant metadata from an HTTP request
func RequestInfoFrom(r *http.Request) RequestInfo {
	return RequestInfo{
		Method:        r.Method,
		Path:          r.URL.Path,
		Host:          r.Host,
		Origin:        r.Header.Get("Origin"),
		Authorization: r.Header.Get("Authorization"),
	}
}

// Outcome is the decision taken for a request
type Outcome int

const (
	// OutcomeAnonymous lets the request through without a principal
	OutcomeAnonymous Outcome = iota
	// OutcomeAuthenticated lets the request through with a principal
	OutcomeAuthenticated
	// OutcomeRejected stops the request
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAnonymous:
		return "anonymous"
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is what a stage decided, and which stage decided it
type Result struct {
	Outcome   Outcome
	Principal *models.Principal
	Rejection *Rejection
	Stage     string
}

// Stage is one step of the gate. A stage either decides the request (handled is
// true) or passes it on to the next stage.
type Stage interface {
	Name() string
	Handle(ctx context.Context, req RequestInfo) (result Result, handled bool)
}

// Gate runs stages in order and returns the first decision
type Gate struct {
	stages []Stage
}

// NewGate composes stages into an ordered pipeline
func NewGate(stages ...Stage) *Gate {
	return &Gate{stages: stages}
}

// Evaluate runs the pipeline for one request. A request no stage decides is rejected.
func (g *Gate) Evaluate(ctx context.Context, req RequestInfo) Result {
	for _, stage := range g.stages {
		result, handled := stage.Handle(ctx, req)
		if handled {
			result.Stage = stage.Name()
			return result
		}
	}
	return Result{
		Outcome:   OutcomeRejected,
		Rejection: reject(RejectMissingHeader, reasonMissingHeader),
		Stage:     "default",
	}
}

// GateConfig selects the stages built by NewDefaultGate
type GateConfig struct {
	ExemptRoutes []string
	// LocalTrust enables the development principal for loopback hosts and origins
	LocalTrust bool
}

// NewDefaultGate builds the standard pipeline: preflight, local trust (when enabled),
// exempt routes, bearer token
func NewDefaultGate(verifier *Verifier, cfg GateConfig) *Gate {
	stages := []Stage{PreflightStage{}}
	if cfg.LocalTrust {
		stages = append(stages, LocalTrustStage{})
	}
	routes := cfg.ExemptRoutes
	if routes == nil {
		routes = DefaultExemptRoutes
	}
	stages = append(stages, NewExemptRouteStage(routes), NewBearerStage(verifier))
	return NewGate(stages...)
}

// PreflightStage lets CORS preflight requests through
type PreflightStage struct{}

func (PreflightStage) Name() string { return "preflight" }

func (PreflightStage) Handle(_ context.Context, req RequestInfo) (Result, bool) {
	if req.Method != http.MethodOptions {
		return Result{}, false
	}
	return Result{Outcome: OutcomeAnonymous}, true
}

// LocalTrustStage attaches the development principal to requests whose host or
// Origin is a loopback address, whatever their token says
type LocalTrustStage struct{}

func (LocalTrustStage) Name() string { return "local_trust" }

func (LocalTrustStage) Handle(_ context.Context, req RequestInfo) (Result, bool) {
	if !IsLoopback(req.Host) && !IsLoopback(req.Origin) {
		return Result{}, false
	}
	return Result{Outcome: OutcomeAuthenticated, Principal: models.NewDevelopmentPrincipal()}, true
}

// IsLoopback reports whether a host or origin value names the local machine
func IsLoopback(value string) bool {
	if value == "" {
		return false
	}
	v := strings.ToLower(value)
	for _, marker := range loopbackMarkers {
		if strings.Contains(v, marker) {
			return true
		}
	}
	return false
}

// ExemptRouteStage lets public routes through unauthenticated
type ExemptRouteStage struct {
	markers []string
}

// NewExemptRouteStage creates a stage exempting any path that contains one of markers
func NewExemptRouteStage(markers []string) ExemptRouteStage {
	cleaned := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			cleaned = append(cleaned, m)
		}
	}
	return ExemptRouteStage{markers: cleaned}
}

func (ExemptRouteStage) Name() string { return "exempt_route" }

func (s ExemptRouteStage) Handle(_ context.Context, req RequestInfo) (Result, bool) {
	for _, m := range s.markers {
		if strings.Contains(req.Path, m) {
			return Result{Outcome: OutcomeAnonymous}, true
		}
	}
	return Result{}, false
}

// BearerStage authenticates the request from its bearer token. It always decides.
type BearerStage struct {
	verifier *Verifier
}

// NewBearerStage creates the token verification stage
func NewBearerStage(verifier *Verifier) BearerStage {
	return BearerStage{verifier: verifier}
}

func (BearerStage) Name() string { return "bearer_token" }

func (s BearerStage) Handle(ctx context.Context, req RequestInfo) (Result, bool) {
	principal, rejection := s.verifier.Verify(ctx, req.Authorization)
	if rejection != nil {
		return Result{Outcome: OutcomeRejected, Rejection: rejection}, true
	}
	return Result{Outcome: OutcomeAuthenticated, Principal: principal}, true
}
