package handlers

import (
	"context"
	"time"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
	"github.com/tbourn/wa-intercom-relay/internal/repo"
	"github.com/tbourn/wa-intercom-relay/internal/services"
)

//
// Service contracts (context-aware)
//

// IntakeService records inbound webhook deliveries.
type IntakeService interface {
	ReceiveTwilio(ctx context.Context, req services.TwilioRequest) (services.IntakeResult, error)
	ReceiveIntercom(ctx context.Context, req services.IntercomRequest) (services.IntakeResult, error)
}

// RoutingService reads and replaces the routing configuration.
type RoutingService interface {
	Active(ctx context.Context) (*domain.RoutingConfig, error)
	Upsert(ctx context.Context, numberTo, workspaceID string, enabled bool) (*domain.RoutingConfig, error)
}

// ValidationService exposes the integration health rows.
type ValidationService interface {
	List(ctx context.Context) ([]domain.IntegrationValidation, error)
	Check(ctx context.Context, integration string) (*domain.IntegrationValidation, error)
}

// EventService lists the audit log.
type EventService interface {
	List(ctx context.Context, f repo.EventFilter) ([]domain.Event, error)
	Stats(ctx context.Context) (int64, *time.Time, error)
}

// Replayer re-runs a relay job on operator request.
type Replayer interface {
	Replay(ctx context.Context, messageSID string) (*domain.Event, error)
}

//
// Handler wiring
//

// Deps carries the services and settings the handlers depend on.
type Deps struct {
	Intake      IntakeService
	Routing     RoutingService
	Validations ValidationService
	Events      EventService
	Replayer    Replayer

	// PublicBaseURL, when set, replaces the scheme and host of the request URL
	// used for Twilio signature checks.
	PublicBaseURL string
	// TrustProxyHeaders lets X-Forwarded-Proto/X-Forwarded-Host stand in
	// for PublicBaseURL.
	TrustProxyHeaders bool
}

// Handlers groups the webhook and dashboard endpoints.
type Handlers struct {
	intake      IntakeService
	routing     RoutingService
	validations ValidationService
	events      EventService
	replayer    Replayer

	publicBaseURL     string
	trustProxyHeaders bool
}

// New constructs a Handlers bound to the given services.
func New(d Deps) *Handlers {
	return &Handlers{
		intake:            d.Intake,
		routing:           d.Routing,
		validations:       d.Validations,
		events:            d.Events,
		replayer:          d.Replayer,
		publicBaseURL:     d.PublicBaseURL,
		trustProxyHeaders: d.TrustProxyHeaders,
	}
}
