// Package whatsapp implements the WhatsApp Cloud API channel: outbound
// message payloads, the Graph API client and the inbound webhook.
package whatsapp

import (
	"strconv"
	"strings"
	"time"
)

// WebhookPayload is the top-level webhook body sent by Meta.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string       `json:"messaging_product"`
	Metadata         Metadata     `json:"metadata"`
	Contacts         []Contact    `json:"contacts,omitempty"`
	Messages         []RawMessage `json:"messages,omitempty"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// RawMessage is one inbound message as delivered.
type RawMessage struct {
	From        string          `json:"from"`
	ID          string          `json:"id"`
	Timestamp   string          `json:"timestamp"`
	Type        string          `json:"type"`
	Text        *RawText        `json:"text,omitempty"`
	Interactive *RawInteractive `json:"interactive,omitempty"`
	Button      *RawButton      `json:"button,omitempty"`
	Context     *RawContext     `json:"context,omitempty"`
}

type RawText struct {
	Body string `json:"body"`
}

type RawInteractive struct {
	Type        string    `json:"type"`
	ListReply   *RawReply `json:"list_reply,omitempty"`
	ButtonReply *RawReply `json:"button_reply,omitempty"`
}

type RawReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// RawButton is a quick-reply tap on a template message.
type RawButton struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type RawContext struct {
	From string `json:"from"`
	ID   string `json:"id"`
}

// InboundMessage is the normalized form handed to the conversation layer.
type InboundMessage struct {
	ID          string
	From        string
	ProfileName string
	Text        string
	// ReplyID is the id of the tapped list row or button, empty for text.
	ReplyID    string
	ReplyTitle string
	ContextID  string
	Timestamp  time.Time
}

// IsReply reports whether the message is an interactive selection.
func (m InboundMessage) IsReply() bool {
	return m.ReplyID != ""
}

// ParseWebhookPayload extracts the messages of every change, in order.
func ParseWebhookPayload(p WebhookPayload) []InboundMessage {
	var out []InboundMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, raw := range change.Value.Messages {
				out = append(out, normalize(raw, names[raw.From]))
			}
		}
	}
	return out
}

func normalize(raw RawMessage, profileName string) InboundMessage {
	msg := InboundMessage{
		ID:          raw.ID,
		From:        NormalizePhone(raw.From),
		ProfileName: strings.TrimSpace(profileName),
	}
	if secs, err := strconv.ParseInt(raw.Timestamp, 10, 64); err == nil {
		msg.Timestamp = time.Unix(secs, 0)
	}
	if raw.Context != nil {
		msg.ContextID = raw.Context.ID
	}
	switch {
	case raw.Text != nil:
		msg.Text = raw.Text.Body
	case raw.Interactive != nil && raw.Interactive.ListReply != nil:
		msg.ReplyID = raw.Interactive.ListReply.ID
		msg.ReplyTitle = raw.Interactive.ListReply.Title
	case raw.Interactive != nil && raw.Interactive.ButtonReply != nil:
		msg.ReplyID = raw.Interactive.ButtonReply.ID
		msg.ReplyTitle = raw.Interactive.ButtonReply.Title
	case raw.Button != nil:
		msg.ReplyID = raw.Button.Payload
		msg.ReplyTitle = raw.Button.Text
	}
	return msg
}
