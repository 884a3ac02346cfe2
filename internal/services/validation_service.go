package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
	"github.com/tbourn/wa-intercom-relay/internal/intercom"
	"github.com/tbourn/wa-intercom-relay/internal/repo"
)

// CredentialChecker verifies the Intercom access token against the API.
type CredentialChecker interface {
	HasToken() bool
	Me(ctx context.Context) (*intercom.Admin, error)
}

// ValidationService maintains the per-integration health rows shown on the
// dashboard.
type ValidationService struct {
	Store    ValidationStore
	Intercom CredentialChecker

	TwilioAuthToken       string
	IntercomWebhookSecret string

	Now func() time.Time
}

func (s *ValidationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// List returns every validation row.
func (s *ValidationService) List(ctx context.Context) ([]domain.IntegrationValidation, error) {
	return s.Store.ListValidations(ctx)
}

// MarkWebhookReceived stamps the integration's last webhook time. Failures
// are logged only; a health stamp must never fail a webhook.
func (s *ValidationService) MarkWebhookReceived(ctx context.Context, integration string) {
	if err := s.Store.MarkWebhookReceived(ctx, integration, s.now()); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("integration", integration).Msg("mark webhook received failed")
	}
}

// Check runs the health check of one integration and persists the result.
//
// Twilio has no credential endpoint the relay can call with only the auth
// token, so its check is configuration-only. Intercom is checked live with
// GET /me and its failures are classified like relay failures.
func (s *ValidationService) Check(ctx context.Context, integration string) (*domain.IntegrationValidation, error) {
	ctx, span := otel.Tracer("services/ValidationService").Start(ctx, "Check",
		trace.WithAttributes(attribute.String("integration", integration)),
	)
	defer span.End()

	u := repo.ValidationUpdate{Integration: integration, Status: domain.ValidationOK, CheckedAt: s.now()}

	switch integration {
	case domain.IntegrationTwilio:
		if s.TwilioAuthToken == "" {
			u.Status, u.LastErrorCode, u.LastErrorDetail = domain.ValidationFailed, domain.CodeAuthInvalid, "TWILIO_AUTH_TOKEN not configured"
		}
	case domain.IntegrationIntercom:
		switch {
		case s.Intercom == nil || !s.Intercom.HasToken():
			u.Status, u.LastErrorCode, u.LastErrorDetail = domain.ValidationFailed, domain.CodeAuthInvalid, "INTERCOM_ACCESS_TOKEN not configured"
		case s.IntercomWebhookSecret == "":
			u.Status, u.LastErrorCode, u.LastErrorDetail = domain.ValidationFailed, domain.CodeSignatureInvalid, "INTERCOM_WEBHOOK_SECRET not configured"
		default:
			if _, err := s.Intercom.Me(ctx); err != nil {
				code, detail := ClassifyError(err)
				u.Status, u.LastErrorCode, u.LastErrorDetail = domain.ValidationFailed, code, detail
			}
		}
	default:
		return nil, ErrUnknownIntegration
	}

	if err := s.Store.SetValidation(ctx, u); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().
		Str("integration", integration).
		Str("status", string(u.Status)).
		Str("code", u.LastErrorCode).
		Msg("integration validated")
	return s.Store.GetValidation(ctx, integration)
}
