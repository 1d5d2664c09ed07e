package changefeed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/l0p7/gatewaycache/internal/services/communication"
)

func TestDecodeRowJSONPayload(t *testing.T) {
	payload := []byte(`{"Action":"INSERT","Data":{
		"CommunicationId":"0b8a6ef4-5a8f-4c5c-9a3f-19fa1ab6bf9e",
		"Subject":"Maintenance","Text":"<p>Down tonight</p>",
		"CommunicationTypeCode":"Banner","CommunicationStatusCode":"New",
		"Priority":10,
		"EffectiveDateTime":"2024-03-01T12:00:00",
		"ExpiryDateTime":"2024-03-02T12:00:00.123456",
		"CreatedBy":"System","CreatedDateTime":"2024-02-28T08:30:00"}}`)

	event, err := Decode(payload)
	require.NoError(t, err)
	require.Equal(t, "INSERT", event.Action)
	require.NotNil(t, event.Data)
	require.Equal(t, "0b8a6ef4-5a8f-4c5c-9a3f-19fa1ab6bf9e", event.Data.ID.String())
	require.Equal(t, communication.Banner, event.Data.CommunicationTypeCode)
	require.Equal(t, communication.StatusNew, event.Data.CommunicationStatusCode)
	require.Equal(t, 10, event.Data.Priority)
	require.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), event.Data.EffectiveDateTime)
	require.Equal(t, time.Date(2024, 3, 2, 12, 0, 0, 123456000, time.UTC), event.Data.ExpiryDateTime)
	require.Equal(t, "System", event.Data.CreatedBy)
	require.True(t, event.Data.UpdatedDateTime.IsZero())
}

func TestDecodeCaseInsensitiveKeysAndZonedTimes(t *testing.T) {
	payload := []byte(`{"action":"UPDATE","data":{
		"id":"0b8a6ef4-5a8f-4c5c-9a3f-19fa1ab6bf9e",
		"communicationTypeCode":"InApp","communicationStatusCode":"Draft",
		"effectiveDateTime":"2024-03-01T12:00:00-08:00",
		"expiryDateTime":"2024-03-01 23:00:00+00",
		"updatedDateTime":null}}`)

	event, err := Decode(payload)
	require.NoError(t, err)
	require.Equal(t, "UPDATE", event.Action)
	require.Equal(t, communication.InApp, event.Data.CommunicationTypeCode)
	require.Equal(t, communication.StatusDraft, event.Data.CommunicationStatusCode)
	require.Equal(t, time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC), event.Data.EffectiveDateTime)
	require.Equal(t, time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC), event.Data.ExpiryDateTime)
}

func TestDecodeWithoutData(t *testing.T) {
	event, err := Decode([]byte(`{"Action":"DELETE"}`))
	require.NoError(t, err)
	require.Equal(t, "DELETE", event.Action)
	require.Nil(t, event.Data)
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":     `{"Action":`,
		"bad id":       `{"Action":"INSERT","Data":{"Id":"nope"}}`,
		"missing id":   `{"Action":"INSERT","Data":{"Subject":"x"}}`,
		"bad time":     `{"Action":"INSERT","Data":{"Id":"0b8a6ef4-5a8f-4c5c-9a3f-19fa1ab6bf9e","EffectiveDateTime":"yesterday"}}`,
		"numeric time": `{"Action":"INSERT","Data":{"Id":"0b8a6ef4-5a8f-4c5c-9a3f-19fa1ab6bf9e","EffectiveDateTime":12}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			require.Error(t, err)
		})
	}
}
