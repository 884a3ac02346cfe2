// Package services – IntakeService
//
// IntakeService is the synchronous half of both webhooks. For Twilio it
// verifies the signature, checks routing and durably records the queued event
// together with its relay job before the HTTP response is written; the relay
// itself runs on the Dispatcher. For Intercom it verifies, filters the topic
// and records the event; nothing is relayed back to WhatsApp.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
	"github.com/tbourn/wa-intercom-relay/internal/intercom"
	"github.com/tbourn/wa-intercom-relay/internal/normalize"
	"github.com/tbourn/wa-intercom-relay/internal/signature"
)

// maxMedia caps how many MediaUrl{i} fields are read from one message.
const maxMedia = 10

// Enqueuer hands durable relay work to a background runner.
type Enqueuer interface {
	Submit(jobID string, msg domain.InboundMessage) error
}

// TwilioRequest is the raw material of a Twilio webhook delivery.
type TwilioRequest struct {
	URL       string
	Signature string
	Form      url.Values
}

// IntercomRequest is the raw material of an Intercom webhook delivery.
type IntercomRequest struct {
	Signature string
	Body      []byte
}

// IntakeResult tells the handler how to answer the webhook.
type IntakeResult struct {
	HTTPStatus int
	Status     domain.EventStatus
	Code       string
	Key        string
	// Ignored is set for an accepted delivery that is intentionally not acted on.
	Ignored bool
}

// IntakeService records inbound webhooks.
type IntakeService struct {
	Routing     *RoutingService
	Events      *EventRecorder
	Validations *ValidationService
	Jobs        JobStore
	Dispatcher  Enqueuer

	TwilioAuthToken       string
	IntercomWebhookSecret string

	Now func() time.Time
}

func (s *IntakeService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ReceiveTwilio handles one Twilio inbound message delivery.
func (s *IntakeService) ReceiveTwilio(ctx context.Context, req TwilioRequest) (IntakeResult, error) {
	receivedAt := s.now()
	form := req.Form
	numberTo := normalize.E164(form.Get("To"))
	from := normalize.E164(form.Get("From"))
	sid := strings.TrimSpace(form.Get("MessageSid"))
	key := sid
	if key == "" {
		key = SynthesizeTwilioKey(numberTo, from, receivedAt)
	}

	ctx, span := otel.Tracer("services/IntakeService").Start(ctx, "ReceiveTwilio",
		trace.WithAttributes(attribute.String("relay.message_sid", key)),
	)
	defer span.End()

	lg := zerolog.Ctx(ctx).With().
		Str("integration", domain.IntegrationTwilio).
		Str("correlation_id", key).
		Str("to", normalize.Mask(numberTo)).
		Logger()

	route, err := s.Routing.Active(ctx)
	if err != nil {
		return IntakeResult{}, fmt.Errorf("load routing: %w", err)
	}
	workspace := "unknown"
	if route != nil {
		workspace = route.WorkspaceID
	}

	base := domain.Event{
		WorkspaceID:      workspace,
		NumberTo:         numberTo,
		Direction:        domain.DirectionTwilioToIntercom,
		TwilioMessageSID: sid,
		IdempotencyKey:   key,
		Timestamp:        receivedAt,
	}

	if !signature.VerifyTwilio(s.TwilioAuthToken, req.Signature, req.URL, form) {
		lg.Warn().Msg("twilio signature invalid")
		return s.reject(ctx, domain.IntegrationTwilio, base, http.StatusUnauthorized,
			domain.CodeSignatureInvalid, "Twilio signature validation failed"), nil
	}

	if code := s.Routing.Check(route, numberTo); code != "" {
		lg.Warn().Str("code", code).Msg("twilio delivery rejected by routing")
		return s.reject(ctx, domain.IntegrationTwilio, base, http.StatusConflict,
			code, "Routing config missing or disabled"), nil
	}

	base.Status = domain.EventQueued
	ev := s.Events.Build(base)

	msg := domain.InboundMessage{
		MessageSID:  key,
		EventID:     ev.ID,
		From:        from,
		To:          numberTo,
		Text:        form.Get("Body"),
		MediaURLs:   mediaURLs(form),
		WorkspaceID: workspace,
		ReceivedAt:  receivedAt,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return IntakeResult{}, fmt.Errorf("encode relay job: %w", err)
	}

	job, created, err := s.Jobs.EnqueueInbound(ctx, ev, key, payload)
	if err != nil {
		return IntakeResult{}, fmt.Errorf("enqueue relay job: %w", err)
	}
	observeDelivery(domain.IntegrationTwilio, domain.EventQueued, "")
	s.Validations.MarkWebhookReceived(ctx, domain.IntegrationTwilio)

	// A redelivery still runs through the relay so its event is resolved as a
	// duplicate, but only the first delivery drives the job's status.
	jobID := ""
	if created {
		jobID = job.ID
	}
	if err := s.Dispatcher.Submit(jobID, msg); err != nil {
		// The job row is durable; startup recovery will pick it up.
		lg.Error().Err(err).Msg("dispatch relay job failed")
	}

	lg.Info().Bool("redelivery", !created).Msg("twilio delivery queued")
	return IntakeResult{HTTPStatus: http.StatusOK, Status: domain.EventQueued, Key: key}, nil
}

// ReceiveIntercom handles one Intercom webhook notification.
func (s *IntakeService) ReceiveIntercom(ctx context.Context, req IntercomRequest) (IntakeResult, error) {
	receivedAt := s.now()
	env := intercom.ParseWebhook(req.Body)
	key := IntercomKey(env, receivedAt)

	ctx, span := otel.Tracer("services/IntakeService").Start(ctx, "ReceiveIntercom",
		trace.WithAttributes(
			attribute.String("intercom.topic", env.Topic),
			attribute.String("intercom.conversation_id", env.ConversationID),
		),
	)
	defer span.End()

	lg := zerolog.Ctx(ctx).With().
		Str("integration", domain.IntegrationIntercom).
		Str("correlation_id", key).
		Str("topic", env.Topic).
		Logger()

	route, err := s.Routing.Active(ctx)
	if err != nil {
		return IntakeResult{}, fmt.Errorf("load routing: %w", err)
	}
	workspace := env.WorkspaceID
	numberTo := ""
	if route != nil {
		if workspace == "" {
			workspace = route.WorkspaceID
		}
		numberTo = route.NumberTo
	}

	base := domain.Event{
		WorkspaceID:            workspace,
		NumberTo:               numberTo,
		Direction:              domain.DirectionIntercomToTwilio,
		IntercomConversationID: env.ConversationID,
		IdempotencyKey:         key,
		Timestamp:              receivedAt,
	}

	if !signature.VerifyIntercom(s.IntercomWebhookSecret, req.Signature, req.Body) {
		lg.Warn().Msg("intercom signature invalid")
		return s.reject(ctx, domain.IntegrationIntercom, base, http.StatusUnauthorized,
			domain.CodeSignatureInvalid, "Intercom signature validation failed"), nil
	}

	if env.Topic != domain.TopicAdminReplied {
		topic := env.Topic
		if topic == "" {
			topic = "unknown"
		}
		lg.Info().Msg("intercom topic ignored")
		res := s.reject(ctx, domain.IntegrationIntercom, base, http.StatusOK,
			domain.CodeUnsupportedTopic, "Unsupported topic: "+topic)
		res.Ignored = true
		return res, nil
	}

	base.Status = domain.EventQueued
	if _, err := s.Events.Record(ctx, base); err != nil {
		return IntakeResult{}, fmt.Errorf("record intercom event: %w", err)
	}
	observeDelivery(domain.IntegrationIntercom, domain.EventQueued, "")
	s.Validations.MarkWebhookReceived(ctx, domain.IntegrationIntercom)

	lg.Info().Str("intercom_conversation_id", env.ConversationID).Msg("intercom delivery queued")
	return IntakeResult{HTTPStatus: http.StatusOK, Status: domain.EventQueued, Key: key}, nil
}

// reject records a dropped event. A failed write is logged; the delivery is
// still answered with the rejection status.
func (s *IntakeService) reject(ctx context.Context, integration string, ev domain.Event, httpStatus int, code, detail string) IntakeResult {
	ev.Status = domain.EventDropped
	ev.ErrorCode = code
	ev.ErrorDetail = detail
	_, _ = s.Events.Record(ctx, ev)
	observeDelivery(integration, domain.EventDropped, code)
	return IntakeResult{HTTPStatus: httpStatus, Status: domain.EventDropped, Code: code, Key: ev.IdempotencyKey}
}

// SynthesizeTwilioKey builds the correlation key for a delivery without a
// MessageSid: "<to>:<from>:<unix millis>".
func SynthesizeTwilioKey(numberTo, from string, receivedAt time.Time) string {
	return numberTo + ":" + from + ":" + strconv.FormatInt(receivedAt.UnixMilli(), 10)
}

// IntercomKey builds the correlation key of an Intercom notification:
// "intercom:<conversation>:<topic>:<notification id or unix millis>".
func IntercomKey(env intercom.WebhookEnvelope, receivedAt time.Time) string {
	conv := env.ConversationID
	if conv == "" {
		conv = "unknown"
	}
	topic := env.Topic
	if topic == "" {
		topic = "unknown"
	}
	suffix := env.ID
	if suffix == "" {
		suffix = strconv.FormatInt(receivedAt.UnixMilli(), 10)
	}
	return "intercom:" + conv + ":" + topic + ":" + suffix
}

// mediaURLs reads MediaUrl0..MediaUrl{n-1}, where n is NumMedia. When NumMedia
// is missing or malformed, consecutive MediaUrl{i} fields are read instead.
func mediaURLs(form url.Values) []string {
	n, err := strconv.Atoi(strings.TrimSpace(form.Get("NumMedia")))
	if err != nil || n < 0 {
		n = maxMedia
	}
	if n > maxMedia {
		n = maxMedia
	}
	var out []string
	for i := 0; i < n; i++ {
		u := strings.TrimSpace(form.Get("MediaUrl" + strconv.Itoa(i)))
		if u == "" {
			if err != nil {
				break
			}
			continue
		}
		out = append(out, u)
	}
	return out
}
