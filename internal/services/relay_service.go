// Package services – RelayService
//
// RelayService carries one verified, routing-checked WhatsApp message into
// Intercom: it claims the message id, re-validates the route, resolves the
// Intercom contact and conversation for the sender, and posts the message.
// Every run ends with the idempotency record in done or failed and the
// message's event patched with the outcome. Remote failures are classified
// and recorded, never retried here; retry is an operator replay.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
	"github.com/tbourn/wa-intercom-relay/internal/intercom"
	"github.com/tbourn/wa-intercom-relay/internal/normalize"
	"github.com/tbourn/wa-intercom-relay/internal/repo"
)

const dirInbound = domain.DirectionTwilioToIntercom

// IntercomAPI is the subset of the Intercom client used by the relay.
type IntercomAPI interface {
	HasToken() bool
	SearchContactByExternalID(ctx context.Context, externalID string) (*intercom.Contact, error)
	CreateContact(ctx context.Context, externalID, phone string) (*intercom.Contact, error)
	CreateConversation(ctx context.Context, contactID, body string) (string, error)
	ReplyToConversation(ctx context.Context, conversationID, contactID, body string) error
}

// Outcome is the terminal result of one relay run.
type Outcome struct {
	Status         domain.EventStatus
	Code           string
	Detail         string
	ConversationID string
}

// RelayService orchestrates the WhatsApp to Intercom relay.
type RelayService struct {
	Tracker  *IdempotencyTracker
	Events   *EventRecorder
	Routing  *RoutingService
	Mappings MappingStore
	Intercom IntercomAPI
}

// NewRelayService constructs a RelayService.
func NewRelayService(tracker *IdempotencyTracker, events *EventRecorder, routing *RoutingService, mappings MappingStore, api IntercomAPI) *RelayService {
	return &RelayService{
		Tracker:  tracker,
		Events:   events,
		Routing:  routing,
		Mappings: mappings,
		Intercom: api,
	}
}

// Relay runs the full relay for msg. It never returns an error: the outcome
// is recorded on the event log and the idempotency record and also returned.
func (s *RelayService) Relay(ctx context.Context, msg domain.InboundMessage) Outcome {
	started := time.Now()
	key := msg.MessageSID
	ctx, span := otel.Tracer("services/RelayService").Start(ctx, "Relay",
		trace.WithAttributes(
			attribute.String("relay.direction", string(dirInbound)),
			attribute.String("relay.message_sid", key),
		),
	)
	defer span.End()

	lg := zerolog.Ctx(ctx).With().
		Str("integration", domain.IntegrationIntercom).
		Str("correlation_id", key).
		Str("from", normalize.Mask(normalize.E164(msg.From))).
		Logger()
	ctx = lg.WithContext(ctx)

	out := s.run(ctx, msg)

	observeOutcome(dirInbound, out.Status, out.Code)
	relayDuration.WithLabelValues(string(dirInbound)).Observe(time.Since(started).Seconds())
	span.SetAttributes(
		attribute.String("relay.status", string(out.Status)),
		attribute.String("relay.code", out.Code),
	)
	switch out.Status {
	case domain.EventOK:
		lg.Info().Str("intercom_conversation_id", out.ConversationID).Msg("relay ok")
	case domain.EventDropped:
		lg.Info().Str("code", out.Code).Msg("relay skipped")
	default:
		span.SetStatus(codes.Error, out.Code)
		lg.Error().Str("code", out.Code).Str("detail", out.Detail).Msg("relay failed")
	}
	return out
}

func (s *RelayService) run(ctx context.Context, msg domain.InboundMessage) Outcome {
	key := msg.MessageSID
	externalID := normalize.ExternalContactID(msg.From)
	phone := normalize.E164(msg.From)

	rec, owned, err := s.Tracker.Start(ctx, key, dirInbound)
	if err != nil {
		// The key was never claimed, so its record belongs to someone else.
		return s.record(ctx, msg, domain.CodeUnknown, "idempotency start: "+err.Error())
	}
	if !owned {
		code := Classify(rec)
		if code == "" {
			code = domain.CodeDuplicateProcessing
		}
		return s.drop(ctx, msg, code)
	}

	// Routing may have changed between the webhook ack and this run.
	route, err := s.Routing.Active(ctx)
	if err != nil {
		return s.fail(ctx, msg, domain.CodeUnknown, "routing lookup: "+err.Error())
	}
	if code := s.Routing.Check(route, msg.To); code != "" {
		return s.fail(ctx, msg, domain.CodeMissingRouting, "Routing no longer accepts "+normalize.Mask(normalize.E164(msg.To))+" ("+code+")")
	}
	workspace := route.WorkspaceID

	if s.Intercom == nil || !s.Intercom.HasToken() {
		return s.fail(ctx, msg, domain.CodeAuthInvalid, "Intercom access token not configured")
	}

	contactID, err := s.resolveContact(ctx, workspace, externalID, phone)
	if err != nil {
		code, detail := ClassifyError(err)
		return s.fail(ctx, msg, code, detail)
	}

	body := ComposeBody(msg.Text, msg.MediaURLs)
	convID, err := s.deliver(ctx, workspace, externalID, contactID, body)
	if err != nil {
		code, detail := ClassifyError(err)
		return s.fail(ctx, msg, code, detail)
	}

	return s.succeed(ctx, msg, workspace, convID)
}

// resolveContact finds the Intercom contact for externalID, creating it when
// absent, and records the mapping. Search-before-create keeps a crashed run
// from creating a second contact on replay.
func (s *RelayService) resolveContact(ctx context.Context, workspace, externalID, phone string) (string, error) {
	contact, err := s.Intercom.SearchContactByExternalID(ctx, externalID)
	if err != nil {
		return "", err
	}
	if contact == nil {
		contact, err = s.Intercom.CreateContact(ctx, externalID, phone)
		if err != nil {
			return "", err
		}
	}
	if err := s.Mappings.UpsertContactMapping(ctx, workspace, externalID, contact.ID); err != nil {
		return "", fmt.Errorf("persist contact mapping: %w", err)
	}
	return contact.ID, nil
}

// deliver replies into the sender's mapped conversation, or opens one and
// maps it. All messages from one sender fold into the same conversation.
func (s *RelayService) deliver(ctx context.Context, workspace, externalID, contactID, body string) (string, error) {
	m, err := s.Mappings.GetConversationMapping(ctx, workspace, externalID)
	switch {
	case err == nil:
		if err := s.Intercom.ReplyToConversation(ctx, m.IntercomConversationID, contactID, body); err != nil {
			return "", err
		}
		return m.IntercomConversationID, nil
	case !errors.Is(err, repo.ErrNotFound):
		return "", fmt.Errorf("load conversation mapping: %w", err)
	}

	convID, err := s.Intercom.CreateConversation(ctx, contactID, body)
	if err != nil {
		return "", err
	}
	if err := s.Mappings.UpsertConversationMapping(ctx, workspace, externalID, convID); err != nil {
		return "", fmt.Errorf("persist conversation mapping: %w", err)
	}
	return convID, nil
}

func (s *RelayService) fallbackEvent(msg domain.InboundMessage) domain.Event {
	return domain.Event{
		WorkspaceID:      msg.WorkspaceID,
		NumberTo:         normalize.E164(msg.To),
		Direction:        dirInbound,
		TwilioMessageSID: msg.MessageSID,
		IdempotencyKey:   msg.MessageSID,
	}
}

func (s *RelayService) succeed(ctx context.Context, msg domain.InboundMessage, workspace, convID string) Outcome {
	fb := s.fallbackEvent(msg)
	fb.WorkspaceID = workspace
	_, _ = s.Events.Resolve(ctx, msg.EventID, repo.EventPatch{
		Status:                 domain.EventOK,
		IntercomConversationID: convID,
	}, fb)
	if err := s.Tracker.MarkDone(ctx, msg.MessageSID, dirInbound); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("idempotency mark done failed")
	}
	return Outcome{Status: domain.EventOK, ConversationID: convID}
}

// fail settles an owned run as failed: the event and the idempotency record.
func (s *RelayService) fail(ctx context.Context, msg domain.InboundMessage, code, detail string) Outcome {
	out := s.record(ctx, msg, code, detail)
	if err := s.Tracker.MarkFailed(ctx, msg.MessageSID, dirInbound, code); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("idempotency mark failed failed")
	}
	return out
}

// record resolves the delivery's event as failed without touching the
// idempotency record.
func (s *RelayService) record(ctx context.Context, msg domain.InboundMessage, code, detail string) Outcome {
	_, _ = s.Events.Resolve(ctx, msg.EventID, repo.EventPatch{
		Status:      domain.EventFailed,
		ErrorCode:   code,
		ErrorDetail: detail,
	}, s.fallbackEvent(msg))
	return Outcome{Status: domain.EventFailed, Code: code, Detail: detail}
}

// drop records a duplicate delivery. The idempotency record belongs to the
// other run and is left alone.
func (s *RelayService) drop(ctx context.Context, msg domain.InboundMessage, code string) Outcome {
	detail := "Message already relayed"
	if code == domain.CodeDuplicateProcessing {
		detail = "Message relay already in progress"
	}
	_, _ = s.Events.Resolve(ctx, msg.EventID, repo.EventPatch{
		Status:      domain.EventDropped,
		ErrorCode:   code,
		ErrorDetail: detail,
	}, s.fallbackEvent(msg))
	return Outcome{Status: domain.EventDropped, Code: code, Detail: detail}
}

// ClassifyError maps a remote-call error to an error code and detail:
// 401/403 auth_invalid, 429 rate_limited, other HTTP statuses intercom_error,
// anything else unknown.
func ClassifyError(err error) (code, detail string) {
	var apiErr *intercom.APIError
	switch {
	case err == nil:
		return "", ""
	case errors.As(err, &apiErr):
		detail = fmt.Sprintf("Intercom API returned %d", apiErr.StatusCode)
		if apiErr.Body != "" {
			detail += ": " + truncate(apiErr.Body, 500)
		}
		switch apiErr.StatusCode {
		case 401, 403:
			return domain.CodeAuthInvalid, detail
		case 429:
			return domain.CodeRateLimited, detail
		default:
			return domain.CodeIntercomError, detail
		}
	case errors.Is(err, intercom.ErrNoToken):
		return domain.CodeAuthInvalid, err.Error()
	default:
		return domain.CodeUnknown, err.Error()
	}
}

// ComposeBody joins the message text and one "Media: <url>" line per media
// item, skipping empty segments.
func ComposeBody(text string, media []string) string {
	parts := make([]string, 0, 1+len(media))
	if strings.TrimSpace(text) != "" {
		parts = append(parts, text)
	}
	for _, u := range media {
		if u = strings.TrimSpace(u); u != "" {
			parts = append(parts, "Media: "+u)
		}
	}
	return strings.Join(parts, "\n")
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
