package gate

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
)

var ErrCredentialsMissing = errors.New("auth key or secret empty")

// Signer computes the HMAC-SHA512 signatures the venue expects on
// authenticated control and api messages.
type Signer struct {
	key    string
	secret string
}

func NewSigner(key string, secret string) *Signer {
	return &Signer{key: key, secret: secret}
}

func (s *Signer) Key() string {
	return s.key
}

func (s *Signer) HasCredentials() bool {
	return s.key != "" && s.secret != ""
}

// Sign returns the hex encoded HMAC-SHA512 of message.
func (s *Signer) Sign(message string) (string, error) {
	if !s.HasCredentials() {
		return "", ErrCredentialsMissing
	}
	mac := hmac.New(sha512.New, []byte(s.secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (s *Signer) SignChannel(channel string, event string, ts int64) (string, error) {
	return s.Sign(fmt.Sprintf("channel=%s&event=%s&time=%d", channel, event, ts))
}

func (s *Signer) SignAPI(channel string, reqParam []byte, ts int64) (string, error) {
	return s.Sign(fmt.Sprintf("%s\n%s\n%s\n%d", EventAPI, channel, reqParam, ts))
}
