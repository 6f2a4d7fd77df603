package gateway

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_1", "payment_intent": "pi_1", "metadata": {"userId": "u1", "courseId": "c1"}}}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, KindCheckoutCompleted, event.Kind)
	assert.Equal(t, "u1", event.UserID)
	assert.Equal(t, "c1", event.CourseID)
	assert.Equal(t, "pi_1", event.ExternalPaymentRef)
}

func TestParseEventFallsBackToSessionID(t *testing.T) {
	payload := []byte(`{"type": "checkout.session.expired",
		"data": {"object": {"id": "cs_9", "metadata": {"userId": "u1", "courseId": "c1"}}}}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, KindCheckoutExpired, event.Kind)
	assert.Equal(t, "cs_9", event.ExternalPaymentRef)
}

func TestParseEventUnknownKind(t *testing.T) {
	event, err := ParseEvent([]byte(`{"id": "evt_2", "type": "invoice.paid", "data": {"object": {}}}`))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, event.Kind)
	assert.Equal(t, "invoice.paid", event.RawType)
}

func TestParseEventMalformed(t *testing.T) {
	_, err := ParseEvent([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = ParseEvent([]byte(`{"type": "checkout.session.completed", "data": {"object": {"metadata": {"userId": "u1"}}}}`))
	assert.ErrorIs(t, err, ErrMissingMetadata)
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"type":"checkout.session.completed"}`)
	now := time.Unix(1_700_000_000, 0)
	sig := Sign(payload, "whsec_test", now.Unix())
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), sig)

	assert.NoError(t, VerifySignature(payload, header, "whsec_test", 5*time.Minute, now))
	assert.ErrorIs(t, VerifySignature(payload, header, "other", 5*time.Minute, now), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature([]byte(`{}`), header, "whsec_test", 5*time.Minute, now), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(payload, header, "whsec_test", 5*time.Minute, now.Add(time.Hour)), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(payload, "garbage", "whsec_test", 5*time.Minute, now), ErrInvalidSignature)
}
