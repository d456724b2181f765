package broadcast

import (
	"context"
	"fmt"
	"time"

	"GreenCorridor/internal/models"
	"GreenCorridor/pkg/notification"
)

const pushTimeout = 5 * time.Second

// PushSink forwards alert events to mobile devices tagged with the target group.
// Purge events are not pushed; they only matter to open clients.
type PushSink struct {
	push *notification.JPush
}

func NewPushSink(p *notification.JPush) *PushSink { return &PushSink{push: p} }

func (s *PushSink) Publish(group, event string, payload interface{}) error {
	title, content, extras, ok := pushContent(event, payload)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	return s.push.PushToTag(ctx, []string{group}, title, content, extras)
}

func pushContent(event string, payload interface{}) (string, string, map[string]interface{}, bool) {
	switch event {
	case EventAlertNew:
		a, ok := payload.(models.Alert)
		if !ok {
			return "", "", nil, false
		}
		content := fmt.Sprintf("Ambulance %s approaching: %s to %s", a.DriverName, a.StartAddress, a.EndAddress)
		return "Ambulance nearby", content, map[string]interface{}{"alertId": int64(a.ID), "event": event}, true
	case EventAlertResponded:
		p, ok := payload.(RespondedPayload)
		if !ok {
			return "", "", nil, false
		}
		return "Route " + string(p.TrafficStatus), p.Message,
			map[string]interface{}{"alertId": int64(p.Alert.ID), "event": event, "trafficStatus": string(p.TrafficStatus)}, true
	}
	return "", "", nil, false
}
