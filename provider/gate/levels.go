package gate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spooky-finn/gatews-bridge/domain"
)

// wireLevel accepts both level encodings the venue uses: spot sends
// ["price","size"] pairs, futures sends {"p":"price","s":size} objects.
type wireLevel struct {
	Price string
	Size  string
}

func (l *wireLevel) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var pair []json.RawMessage
		if err := json.Unmarshal(b, &pair); err != nil {
			return err
		}
		if len(pair) < 2 {
			return fmt.Errorf("price level %s: want [price, size]", b)
		}
		return l.set(pair[0], pair[1])
	}

	var obj struct {
		P json.RawMessage `json:"p"`
		S json.RawMessage `json:"s"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	return l.set(obj.P, obj.S)
}

func (l *wireLevel) set(price, size json.RawMessage) error {
	var err error
	if l.Price, err = scalar(price); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	if l.Size, err = scalar(size); err != nil {
		return fmt.Errorf("size: %w", err)
	}
	return nil
}

// scalar reads a json string or number as its textual form.
func scalar(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", fmt.Errorf("missing value")
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func toPriceLevels(in []wireLevel) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, l := range in {
		level, err := domain.NewPriceLevel(l.Price, l.Size)
		if err != nil {
			return nil, err
		}
		out = append(out, level)
	}
	return out, nil
}
