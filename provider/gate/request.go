package gate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type RequestKind int

const (
	KindSubscribe RequestKind = iota
	KindUnsubscribe
	KindAPICall
)

func (k RequestKind) String() string {
	switch k {
	case KindSubscribe:
		return EventSubscribe
	case KindUnsubscribe:
		return EventUnsubscribe
	case KindAPICall:
		return EventAPI
	default:
		return "unknown"
	}
}

// Request is an outbound control or api message. It is kept unencoded in
// the ledger and gets a fresh timestamp and signature every time it is sent.
type Request struct {
	Kind        RequestKind
	Channel     string
	Payload     any
	RequireAuth bool

	// ID is echoed back by the venue on subscribe responses.
	ID *int64

	// api calls only
	ReqID     string
	ReqHeader string
}

type SubscribeOptions struct {
	ID int64
}

func NewSubscribeRequest(channel string, payload []string, opts *SubscribeOptions) *Request {
	req := &Request{
		Kind:        KindSubscribe,
		Channel:     channel,
		Payload:     payload,
		RequireAuth: RequiresAuth(channel),
	}
	if opts != nil {
		id := opts.ID
		req.ID = &id
	}
	return req
}

func NewUnsubscribeRequest(channel string, payload []string) *Request {
	return &Request{
		Kind:        KindUnsubscribe,
		Channel:     channel,
		Payload:     payload,
		RequireAuth: RequiresAuth(channel),
	}
}

// NewAPIRequest builds an api call. An empty reqID is replaced by a random one.
func NewAPIRequest(channel string, param any, header string, reqID string) *Request {
	if reqID == "" {
		reqID = uuid.NewString()
	}
	if param == nil {
		param = map[string]any{}
	}
	return &Request{
		Kind:        KindAPICall,
		Channel:     channel,
		Payload:     param,
		RequireAuth: true,
		ReqID:       reqID,
		ReqHeader:   header,
	}
}

func (r *Request) Event() string {
	return r.Kind.String()
}

// Markets returns the subscribe payload entries, nil for api calls.
func (r *Request) Markets() []string {
	if r.Kind == KindAPICall {
		return nil
	}
	markets, _ := r.Payload.([]string)
	return markets
}

type channelMessage struct {
	Time    int64        `json:"time"`
	ID      *int64       `json:"id,omitempty"`
	Channel string       `json:"channel"`
	Event   string       `json:"event"`
	Payload any          `json:"payload"`
	Auth    *messageAuth `json:"auth,omitempty"`
}

type messageAuth struct {
	Method string `json:"method"`
	Key    string `json:"KEY"`
	Sign   string `json:"SIGN"`
}

type apiPayload struct {
	ReqHeader map[string]string `json:"req_header"`
	APIKey    string            `json:"api_key"`
	Timestamp string            `json:"timestamp"`
	Signature string            `json:"signature"`
	ReqID     string            `json:"req_id"`
	ReqParam  json.RawMessage   `json:"req_param"`
}

type pingMessage struct {
	Time    int64  `json:"time"`
	Channel string `json:"channel"`
}

// Encode renders the wire message for the instant now.
func (r *Request) Encode(signer *Signer, now time.Time) ([]byte, error) {
	ts := now.Unix()
	if r.Kind == KindAPICall {
		return r.encodeAPI(signer, ts)
	}

	msg := channelMessage{
		Time:    ts,
		ID:      r.ID,
		Channel: r.Channel,
		Event:   r.Event(),
		Payload: r.Payload,
	}
	if r.RequireAuth {
		sign, err := signer.SignChannel(r.Channel, msg.Event, ts)
		if err != nil {
			return nil, err
		}
		msg.Auth = &messageAuth{Method: AuthMethodApiKey, Key: signer.Key(), Sign: sign}
	}
	return json.Marshal(msg)
}

func (r *Request) encodeAPI(signer *Signer, ts int64) ([]byte, error) {
	param, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode req_param of %s: %w", r.Channel, err)
	}
	sign, err := signer.SignAPI(r.Channel, param, ts)
	if err != nil {
		return nil, err
	}

	return json.Marshal(channelMessage{
		Time:    ts,
		Channel: r.Channel,
		Event:   EventAPI,
		Payload: apiPayload{
			ReqHeader: map[string]string{"X-Gate-Channel-Id": r.ReqHeader},
			APIKey:    signer.Key(),
			Timestamp: strconv.FormatInt(ts, 10),
			Signature: sign,
			ReqID:     r.ReqID,
			ReqParam:  param,
		},
	})
}

func encodePing(app string, now time.Time) ([]byte, error) {
	return json.Marshal(pingMessage{Time: now.Unix(), Channel: pingChannel(app)})
}
