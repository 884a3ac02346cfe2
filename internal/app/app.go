// Package app assembles the relay's services from configuration, a database
// handle and an Intercom client. The HTTP layer and the entrypoint share it
// so the production wiring is the one under test.
package app

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/wa-intercom-relay/internal/config"
	"github.com/tbourn/wa-intercom-relay/internal/http/handlers"
	"github.com/tbourn/wa-intercom-relay/internal/intercom"
	"github.com/tbourn/wa-intercom-relay/internal/repo"
	"github.com/tbourn/wa-intercom-relay/internal/services"
)

// App holds the wired services.
type App struct {
	Store       *repo.Store
	Routing     *services.RoutingService
	Events      *services.EventRecorder
	Validations *services.ValidationService
	Relay       *services.RelayService
	Intake      *services.IntakeService
	Dispatcher  *services.Dispatcher

	publicBaseURL     string
	trustProxyHeaders bool
}

// New wires the services. The dispatcher's workers live until ctx is
// cancelled or Close is called.
func New(ctx context.Context, cfg config.Config, db *gorm.DB, api *intercom.Client) *App {
	st := repo.NewStore(db)

	routing := services.NewRoutingService(st)
	events := services.NewEventRecorder(st, cfg.Env)
	tracker := services.NewIdempotencyTracker(st)
	validations := &services.ValidationService{
		Store:                 st,
		Intercom:              api,
		TwilioAuthToken:       cfg.Twilio.AuthToken,
		IntercomWebhookSecret: cfg.Intercom.WebhookSecret,
	}
	relay := services.NewRelayService(tracker, events, routing, st, api)
	dispatcher := services.NewDispatcher(ctx, relay, st, st, events, cfg.Relay.Workers, cfg.Relay.QueueSize)
	intake := &services.IntakeService{
		Routing:               routing,
		Events:                events,
		Validations:           validations,
		Jobs:                  st,
		Dispatcher:            dispatcher,
		TwilioAuthToken:       cfg.Twilio.AuthToken,
		IntercomWebhookSecret: cfg.Intercom.WebhookSecret,
	}

	return &App{
		Store:             st,
		Routing:           routing,
		Events:            events,
		Validations:       validations,
		Relay:             relay,
		Intake:            intake,
		Dispatcher:        dispatcher,
		publicBaseURL:     cfg.PublicBaseURL,
		trustProxyHeaders: cfg.TrustProxyHeaders,
	}
}

// HandlerDeps returns the dependencies of the HTTP handlers.
func (a *App) HandlerDeps() handlers.Deps {
	return handlers.Deps{
		Intake:            a.Intake,
		Routing:           a.Routing,
		Validations:       a.Validations,
		Events:            a.Events,
		Replayer:          a.Dispatcher,
		PublicBaseURL:     a.publicBaseURL,
		TrustProxyHeaders: a.trustProxyHeaders,
	}
}

// Close drains the dispatcher, waiting for in-flight relays.
func (a *App) Close() { a.Dispatcher.Stop() }
