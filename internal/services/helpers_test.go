package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
	"github.com/tbourn/wa-intercom-relay/internal/intercom"
	"github.com/tbourn/wa-intercom-relay/internal/repo"
)

// newStore opens a private in-memory database with every relay table. A
// single connection serializes the dispatcher's workers.
func newStore(t *testing.T) *repo.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.AutoMigrate(db))
	return repo.NewStore(db)
}

func seedRoute(t *testing.T, st *repo.Store, numberTo, workspace string, enabled bool, created time.Time) {
	t.Helper()
	require.NoError(t, st.DB.Create(&domain.RoutingConfig{
		ID:          uuid.NewString(),
		NumberTo:    numberTo,
		WorkspaceID: workspace,
		Enabled:     enabled,
		CreatedAt:   created,
		UpdatedAt:   created,
	}).Error)
}

func eventsByKey(t *testing.T, st *repo.Store, key string) []domain.Event {
	t.Helper()
	var out []domain.Event
	require.NoError(t, st.DB.Where("idempotency_key = ?", key).Order("id ASC").Find(&out).Error)
	return out
}

// fakeIntercom records calls and returns scripted results.
type fakeIntercom struct {
	mu sync.Mutex

	// onSearch runs before each contact search, outside the lock.
	onSearch func()

	token    bool
	contacts map[string]*intercom.Contact
	nextConv int

	searchErr error
	createErr error
	convErr   error
	replyErr  error
	meErr     error

	searches, creates, conversations, replies int
	lastBody                                  string
	lastConv                                  string
}

func newFakeIntercom() *fakeIntercom {
	return &fakeIntercom{token: true, contacts: map[string]*intercom.Contact{}}
}

func (f *fakeIntercom) HasToken() bool { return f.token }

func (f *fakeIntercom) SearchContactByExternalID(_ context.Context, externalID string) (*intercom.Contact, error) {
	if f.onSearch != nil {
		f.onSearch()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.contacts[externalID], nil
}

func (f *fakeIntercom) CreateContact(_ context.Context, externalID, phone string) (*intercom.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	c := &intercom.Contact{ID: fmt.Sprintf("contact-%d", len(f.contacts)+1), ExternalID: externalID, Phone: phone}
	f.contacts[externalID] = c
	return c, nil
}

func (f *fakeIntercom) CreateConversation(_ context.Context, _ string, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations++
	f.lastBody = body
	if f.convErr != nil {
		return "", f.convErr
	}
	f.nextConv++
	return fmt.Sprintf("conv-%d", f.nextConv), nil
}

func (f *fakeIntercom) ReplyToConversation(_ context.Context, conversationID, _ string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies++
	f.lastBody = body
	f.lastConv = conversationID
	return f.replyErr
}

func (f *fakeIntercom) Me(context.Context) (*intercom.Admin, error) {
	if f.meErr != nil {
		return nil, f.meErr
	}
	return &intercom.Admin{ID: "admin-1", Type: "admin"}, nil
}

func (f *fakeIntercom) remoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches + f.creates + f.conversations + f.replies
}

// harness wires the services over one store.
type harness struct {
	store    *repo.Store
	api      *fakeIntercom
	tracker  *IdempotencyTracker
	events   *EventRecorder
	routing  *RoutingService
	relay    *RelayService
	validate *ValidationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := newStore(t)
	api := newFakeIntercom()
	h := &harness{store: st, api: api}
	h.tracker = NewIdempotencyTracker(st)
	h.events = NewEventRecorder(st, "dev")
	h.routing = NewRoutingService(st)
	h.relay = NewRelayService(h.tracker, h.events, h.routing, st, api)
	h.validate = &ValidationService{
		Store:                 st,
		Intercom:              api,
		TwilioAuthToken:       "twilio-token",
		IntercomWebhookSecret: "intercom-secret",
	}
	return h
}

func inbound(sid, from, to, text string) domain.InboundMessage {
	return domain.InboundMessage{
		MessageSID:  sid,
		From:        from,
		To:          to,
		Text:        text,
		WorkspaceID: "W1",
		ReceivedAt:  time.Now().UTC(),
	}
}

// queued records the queued event of one delivery of msg and returns msg
// bound to it, as intake hands it to the dispatcher.
func queued(t *testing.T, h *harness, msg domain.InboundMessage) domain.InboundMessage {
	t.Helper()
	ev, err := h.events.Record(context.Background(), domain.Event{
		WorkspaceID:      msg.WorkspaceID,
		NumberTo:         msg.To,
		Direction:        domain.DirectionTwilioToIntercom,
		Status:           domain.EventQueued,
		TwilioMessageSID: msg.MessageSID,
		IdempotencyKey:   msg.MessageSID,
	})
	require.NoError(t, err)
	msg.EventID = ev.ID
	return msg
}
