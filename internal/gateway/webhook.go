package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Kind is the closed set of webhook events reconciliation understands
type Kind int

const (
	KindUnknown Kind = iota
	KindCheckoutCompleted
	KindCheckoutExpired
)

func (k Kind) String() string {
	switch k {
	case KindCheckoutCompleted:
		return "checkout_completed"
	case KindCheckoutExpired:
		return "checkout_expired"
	default:
		return "unknown"
	}
}

// Metadata keys set on every payment link
const (
	MetadataUserID   = "userId"
	MetadataCourseID = "courseId"
)

var (
	// ErrMalformedEvent is returned when the payload is not a gateway event
	ErrMalformedEvent = errors.New("malformed webhook event")
	// ErrMissingMetadata is returned when a checkout event lacks userId/courseId
	ErrMissingMetadata = errors.New("webhook event missing payment metadata")
	// ErrInvalidSignature is returned when the signature header does not verify
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Event is a parsed webhook delivery
type Event struct {
	ID      string
	RawType string
	Kind    Kind
	// Populated for checkout kinds only
	SessionID          string
	UserID             string
	CourseID           string
	ExternalPaymentRef string
}

type rawEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string            `json:"id"`
			PaymentIntent string            `json:"payment_intent"`
			Metadata      map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a webhook payload. Unknown event types parse fine and
// come back as KindUnknown; checkout events must carry the pair metadata.
func ParseEvent(payload []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if raw.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	event := &Event{ID: raw.ID, RawType: raw.Type}
	switch raw.Type {
	case "checkout.session.completed":
		event.Kind = KindCheckoutCompleted
	case "checkout.session.expired":
		event.Kind = KindCheckoutExpired
	default:
		event.Kind = KindUnknown
		return event, nil
	}

	session := raw.Data.Object
	event.SessionID = session.ID
	event.UserID = session.Metadata[MetadataUserID]
	event.CourseID = session.Metadata[MetadataCourseID]
	if event.UserID == "" || event.CourseID == "" {
		return nil, ErrMissingMetadata
	}

	// Sessions paid without a payment intent are referenced by the session id.
	event.ExternalPaymentRef = session.PaymentIntent
	if event.ExternalPaymentRef == "" {
		event.ExternalPaymentRef = session.ID
	}
	return event, nil
}

// VerifySignature checks a "t=<unix>,v1=<hex hmac>" header against the raw
// payload. Signatures older than tolerance are rejected.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signatures = append(signatures, v)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if tolerance > 0 && now.Sub(time.Unix(ts, 0)) > tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := Sign(payload, secret, ts)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign computes the v1 signature for payload at timestamp ts
func Sign(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
