package kafka

import (
	"errors"
	"testing"
)

type payload struct {
	Kind string  `json:"kind"`
	From float64 `json:"from"`
}

func TestEncode(t *testing.T) {
	msgs, err := Encode([]Event{
		{Key: "Event", Value: payload{Kind: "Event", From: -10}},
		{Key: "Person", Value: payload{Kind: "Person", From: 5}},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if string(msgs[0].Key) != "Event" || string(msgs[0].Value) != `{"kind":"Event","from":-10}` {
		t.Errorf("unexpected message %s=%s", msgs[0].Key, msgs[0].Value)
	}
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	if _, err := Encode([]Event{{Key: "bad", Value: make(chan int)}}); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestDecodeJSON(t *testing.T) {
	got, err := DecodeJSON[payload]([]byte(`{"kind":"Event","from":3}`))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if got.Kind != "Event" || got.From != 3 {
		t.Errorf("got %+v", got)
	}

	_, err = DecodeJSON[payload]([]byte(`not json`))
	if !errors.Is(err, ErrSkip) {
		t.Errorf("decode failure should wrap ErrSkip, got %v", err)
	}
}
