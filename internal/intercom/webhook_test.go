package intercom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWebhook(t *testing.T) {
	cases := []struct {
		name string
		body string
		want WebhookEnvelope
	}{
		{
			name: "admin replied",
			body: `{"id":"notif_1","topic":"conversation.admin.replied","app_id":"app1","data":{"item":{"type":"conversation","id":"123"}}}`,
			want: WebhookEnvelope{ID: "notif_1", Topic: "conversation.admin.replied", ItemType: "conversation", ItemID: "123", ConversationID: "123", WorkspaceID: "app1"},
		},
		{
			name: "topic falls back to item type",
			body: `{"data":{"item":{"type":"conversation_part","conversation_id":"c9"}}}`,
			want: WebhookEnvelope{Topic: "conversation_part", ItemType: "conversation_part", ConversationID: "c9"},
		},
		{
			name: "numeric ids and explicit workspace",
			body: `{"topic":"x","app_id":"app1","data":{"workspace_id":"ws9","item":{"id":42}}}`,
			want: WebhookEnvelope{Topic: "x", ItemID: "42", ConversationID: "42", WorkspaceID: "ws9"},
		},
		{
			name: "wrong types are ignored",
			body: `{"topic":{"nested":true},"data":{"item":{"id":[1,2],"type":null}}}`,
			want: WebhookEnvelope{},
		},
		{
			name: "data is not an object",
			body: `{"topic":"t","data":"oops"}`,
			want: WebhookEnvelope{Topic: "t"},
		},
		{name: "malformed json", body: `{"topic":`, want: WebhookEnvelope{}},
		{name: "empty body", body: ``, want: WebhookEnvelope{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseWebhook([]byte(tc.body)))
		})
	}
}
