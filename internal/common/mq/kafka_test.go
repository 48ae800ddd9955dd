package mq

import (
	"testing"
	"time"
)

func TestToKafkaMessageUsesKeyAndHeaders(t *testing.T) {
	msg := NewMessage([]byte(`{"problem":"sum"}`))
	msg.ID = "run-1"
	msg.Key = "f1/hw1/sum"
	msg.SetHeader("event", "grader.result")

	km := toKafkaMessage("grader.result", msg)
	if km.Topic != "grader.result" {
		t.Fatalf("unexpected topic %q", km.Topic)
	}
	if string(km.Key) != "f1/hw1/sum" {
		t.Fatalf("expected explicit key, got %q", km.Key)
	}
	headers := map[string]string{}
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event"] != "grader.result" || headers[headerID] != "run-1" {
		t.Fatalf("unexpected headers %v", headers)
	}
	if _, err := time.Parse(time.RFC3339Nano, headers[headerTimestamp]); err != nil {
		t.Fatalf("timestamp header not RFC3339: %v", err)
	}
}

func TestToKafkaMessageFallsBackToID(t *testing.T) {
	msg := &Message{ID: "abc", Body: []byte("x")}
	km := toKafkaMessage("t", msg)
	if string(km.Key) != "abc" {
		t.Fatalf("expected id as key, got %q", km.Key)
	}
	if km.Time.IsZero() {
		t.Fatalf("expected timestamp to be filled")
	}
}

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaProducer(KafkaConfig{}); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
