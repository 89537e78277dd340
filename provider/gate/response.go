package gate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spooky-finn/gatews-bridge/helpers"
)

var (
	ErrReconnectExhausted = errors.New("max reconnect attempts reached")
	ErrClientClosed       = errors.New("stream client closed")
	ErrMissingChannel     = errors.New("no channel found in response message")
)

// ServiceError is an application level error reported by the venue inside a
// response. It never affects the connection.
type ServiceError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

// DecodeError reports one inbound frame that could not be decoded.
type DecodeError struct {
	Body []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response %q: %v", helpers.Truncate(e.Body, 256), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// TransportError is a connection level failure. It ends the current session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("websocket %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Response is a decoded inbound message.
type Response struct {
	Channel string
	Event   string
	Time    int64
	ID      *int64
	Result  json.RawMessage
	Error   *ServiceError
	Body    []byte
}

type responseHeader struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Status  string `json:"status"`
}

type responseMessage struct {
	Header  *responseHeader `json:"header"`
	Time    int64           `json:"time"`
	ID      *int64          `json:"id"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Error   *ServiceError   `json:"error"`
	Result  json.RawMessage `json:"result"`
	Data    *struct {
		Result json.RawMessage `json:"result"`
		Errs   json.RawMessage `json:"errs"`
	} `json:"data"`
}

// DecodeResponse parses body. The channel comes from the top level field or
// from the header of api responses; a message without one is malformed.
func DecodeResponse(body []byte) (*Response, error) {
	var msg responseMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, &DecodeError{Body: body, Err: err}
	}

	resp := &Response{
		Channel: msg.Channel,
		Event:   msg.Event,
		Time:    msg.Time,
		ID:      msg.ID,
		Error:   msg.Error,
		Body:    body,
	}
	if msg.Header != nil {
		if resp.Channel == "" {
			resp.Channel = msg.Header.Channel
		}
		if resp.Event == "" {
			resp.Event = msg.Header.Event
		}
	}
	if resp.Channel == "" {
		return nil, &DecodeError{Body: body, Err: ErrMissingChannel}
	}

	resp.Result = msg.Result
	if isEmpty(resp.Result) && msg.Data != nil {
		resp.Result = msg.Data.Result
		if isEmpty(resp.Result) {
			resp.Result = msg.Data.Errs
		}
	}
	if isEmpty(resp.Result) {
		resp.Result = nil
	}
	return resp, nil
}

// UnmarshalResult decodes the result payload into v.
func (r *Response) UnmarshalResult(v any) error {
	if r.Result == nil {
		return fmt.Errorf("%s %s: empty result", r.Channel, r.Event)
	}
	return json.Unmarshal(r.Result, v)
}

func isEmpty(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
