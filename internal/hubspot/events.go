package hubspot

import (
	"context"
	"time"
)

// BehavioralEvent is a custom event completion. Either Email or ObjectID
// identifies the contact.
type BehavioralEvent struct {
	EventName  string         `json:"eventName"`
	OccurredAt time.Time      `json:"occurredAt"`
	Email      string         `json:"email,omitempty"`
	ObjectID   string         `json:"objectId,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (c *Client) SendBehavioralEvent(ctx context.Context, ev BehavioralEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := c.do(ctx, "POST", "/events/v3/send", nil, ev, nil); err != nil {
		return wrap("send event "+ev.EventName, err)
	}
	return nil
}
