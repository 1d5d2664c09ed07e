// Package changefeed delivers communication change events from the database
// to the communication service.
package changefeed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/l0p7/gatewaycache/internal/services/communication"
)

// Timestamps from row_to_json carry no zone for timestamp columns; those are
// stored in UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
}

type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("changefeed: timestamp: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("changefeed: unrecognised timestamp %q", raw)
}

// wireCommunication accepts both the column names of the Communication table
// and the service field names. Keys match case-insensitively.
type wireCommunication struct {
	ID                      string   `json:"Id"`
	CommunicationID         string   `json:"CommunicationId"`
	Subject                 string   `json:"Subject"`
	Text                    string   `json:"Text"`
	CommunicationTypeCode   string   `json:"CommunicationTypeCode"`
	CommunicationStatusCode string   `json:"CommunicationStatusCode"`
	Priority                int      `json:"Priority"`
	EffectiveDateTime       flexTime `json:"EffectiveDateTime"`
	ExpiryDateTime          flexTime `json:"ExpiryDateTime"`
	CreatedBy               string   `json:"CreatedBy"`
	CreatedDateTime         flexTime `json:"CreatedDateTime"`
	UpdatedBy               string   `json:"UpdatedBy"`
	UpdatedDateTime         flexTime `json:"UpdatedDateTime"`
}

type wireEvent struct {
	Action string             `json:"Action"`
	Data   *wireCommunication `json:"Data"`
}

// Decode parses a change notification payload.
func Decode(payload []byte) (communication.ChangeEvent, error) {
	var wire wireEvent
	if err := json.Unmarshal(payload, &wire); err != nil {
		return communication.ChangeEvent{}, fmt.Errorf("changefeed: decode event: %w", err)
	}
	event := communication.ChangeEvent{Action: wire.Action}
	if wire.Data == nil {
		return event, nil
	}

	rawID := wire.Data.ID
	if rawID == "" {
		rawID = wire.Data.CommunicationID
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return communication.ChangeEvent{}, fmt.Errorf("changefeed: decode communication id %q: %w", rawID, err)
	}
	event.Data = &communication.Communication{
		ID:                      id,
		Subject:                 wire.Data.Subject,
		Text:                    wire.Data.Text,
		CommunicationTypeCode:   communication.Type(wire.Data.CommunicationTypeCode),
		CommunicationStatusCode: communication.Status(wire.Data.CommunicationStatusCode),
		Priority:                wire.Data.Priority,
		EffectiveDateTime:       wire.Data.EffectiveDateTime.Time,
		ExpiryDateTime:          wire.Data.ExpiryDateTime.Time,
		CreatedBy:               wire.Data.CreatedBy,
		CreatedDateTime:         wire.Data.CreatedDateTime.Time,
		UpdatedBy:               wire.Data.UpdatedBy,
		UpdatedDateTime:         wire.Data.UpdatedDateTime.Time,
	}
	return event, nil
}
