package mailer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBounceEvent(t *testing.T) {
	body := `{
		"eventType": "Bounce",
		"mail": {"destination": ["User <User@Example.com>"]},
		"bounce": {
			"bounceType": "Permanent",
			"bouncedRecipients": [{"emailAddress": "User@Example.com", "diagnosticCode": "smtp; 550 5.1.1 user unknown"}]
		}
	}`

	events, err := ParseEvents([]byte(body))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventBounce, events[0].Type)
	assert.Equal(t, "user@example.com", events[0].Email)
	assert.Equal(t, BouncePermanent, events[0].BounceType)
	assert.Contains(t, events[0].Diagnostic, "550")
}

func TestParseDeliveryInsideSNSEnvelope(t *testing.T) {
	inner := `{"notificationType":"Delivery","mail":{"destination":["a@example.com"]},"delivery":{"recipients":["a@example.com"]}}`
	outer, err := json.Marshal(map[string]string{"Type": "Notification", "Message": inner})
	require.NoError(t, err)

	events, err := ParseEvents(outer)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventDelivery, events[0].Type)
	assert.Equal(t, "a@example.com", events[0].Email)
}

func TestParseComplaintAndErrors(t *testing.T) {
	events, err := ParseEvents([]byte(`{"eventType":"Complaint","complaint":{"complainedRecipients":[{"emailAddress":"b@example.com"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, EventComplaint, events[0].Type)

	_, err = ParseEvents([]byte(`{"eventType":"Open"}`))
	assert.ErrorIs(t, err, ErrUnsupportedEvent)

	_, err = ParseEvents([]byte(`{"eventType":"Bounce"}`))
	assert.ErrorIs(t, err, ErrUnsupportedEvent)

	_, err = ParseEvents([]byte(`not json`))
	assert.Error(t, err)
}
