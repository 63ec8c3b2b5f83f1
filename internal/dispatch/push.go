package dispatch

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jonathan/video-refinery/internal/pipeline"
)

// maxPushBody bounds a push request body.
const maxPushBody = 1 << 20

// PushMessage is the message part of a push delivery. Data is base64 on the
// wire and decoded by encoding/json.
type PushMessage struct {
	Data        []byte            `json:"data"`
	MessageID   string            `json:"messageId"`
	PublishTime time.Time         `json:"publishTime"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// PushEnvelope is the body a push subscription POSTs to the worker endpoint.
type PushEnvelope struct {
	Message         PushMessage `json:"message"`
	Subscription    string      `json:"subscription"`
	DeliveryAttempt int         `json:"deliveryAttempt,omitempty"`
}

// PushDelivery is a decoded push request.
type PushDelivery struct {
	Payload Payload
	Attempt pipeline.Attempt
	// Counted is false when the envelope carried no deliveryAttempt, which
	// happens when the subscription has no dead-letter policy. Such
	// deliveries never reach a final attempt.
	Counted bool
}

// DecodePush parses a push request body. deliveryAttempt counts from 1.
// Malformed envelopes wrap ErrPoison.
func DecodePush(r io.Reader, maxRetry int) (PushDelivery, error) {
	var env PushEnvelope
	if err := json.NewDecoder(io.LimitReader(r, maxPushBody)).Decode(&env); err != nil {
		return PushDelivery{}, fmt.Errorf("%w: invalid push envelope: %v", ErrPoison, err)
	}
	if len(env.Message.Data) == 0 {
		return PushDelivery{}, fmt.Errorf("%w: push message has no data", ErrPoison)
	}
	payload, err := DecodePayload(env.Message.Data)
	if err != nil {
		return PushDelivery{}, err
	}

	if maxRetry <= 0 {
		maxRetry = DefaultMaxRetry
	}
	d := PushDelivery{Attempt: pipeline.Attempt{MaxRetry: maxRetry}}
	if env.DeliveryAttempt > 0 {
		d.Attempt.Retry = env.DeliveryAttempt - 1
		d.Counted = true
	}
	payload.RetryCount = d.Attempt.Retry
	d.Payload = payload
	return d, nil
}
