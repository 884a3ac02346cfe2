package intercom

import (
	"encoding/json"
	"strconv"
	"strings"
)

// WebhookEnvelope is the typed view of an Intercom notification. Every field
// is optional; absent or mistyped values are left empty.
type WebhookEnvelope struct {
	ID             string
	Topic          string
	ItemType       string
	ItemID         string
	ConversationID string
	WorkspaceID    string
}

type rawEnvelope struct {
	ID    json.RawMessage `json:"id"`
	Topic json.RawMessage `json:"topic"`
	AppID json.RawMessage `json:"app_id"`
	Data  json.RawMessage `json:"data"`
}

type rawData struct {
	WorkspaceID json.RawMessage `json:"workspace_id"`
	Item        json.RawMessage `json:"item"`
}

type rawItem struct {
	Type           json.RawMessage `json:"type"`
	ID             json.RawMessage `json:"id"`
	ConversationID json.RawMessage `json:"conversation_id"`
}

// ParseWebhook extracts the envelope from an Intercom webhook body. It never
// fails: malformed JSON yields an empty envelope.
//
// Topic is the top-level "topic", else data.item.type. The conversation id is
// data.item.id, else data.item.conversation_id. The workspace is
// data.workspace_id, else the top-level app_id.
func ParseWebhook(body []byte) WebhookEnvelope {
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return WebhookEnvelope{}
	}

	env := WebhookEnvelope{
		ID:          scalar(raw.ID),
		Topic:       scalar(raw.Topic),
		WorkspaceID: scalar(raw.AppID),
	}
	// Nested objects are decoded one level at a time so a mistyped branch
	// only blanks the fields beneath it.
	var data rawData
	if json.Unmarshal(raw.Data, &data) == nil {
		if ws := scalar(data.WorkspaceID); ws != "" {
			env.WorkspaceID = ws
		}
		var item rawItem
		if json.Unmarshal(data.Item, &item) == nil {
			env.ItemType = scalar(item.Type)
			env.ItemID = scalar(item.ID)
			env.ConversationID = env.ItemID
			if env.ConversationID == "" {
				env.ConversationID = scalar(item.ConversationID)
			}
		}
	}
	if env.Topic == "" {
		env.Topic = env.ItemType
	}
	return env
}

// scalar renders a JSON string or number as text; anything else is "".
func scalar(m json.RawMessage) string {
	if len(m) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(m, &n); err == nil {
		if _, ferr := strconv.ParseFloat(n.String(), 64); ferr == nil {
			return n.String()
		}
	}
	return ""
}
