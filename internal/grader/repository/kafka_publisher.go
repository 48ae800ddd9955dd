package repository

import (
	"context"
	"encoding/json"

	"grader/internal/common/mq"
	appErr "grader/pkg/errors"
)

const (
	DefaultResultTopic = "grader.result"
	eventHeader        = "event"
)

// ResultPublisher emits one event per result, keyed by faculty/homework/problem.
type ResultPublisher struct {
	producer mq.Producer
	topic    string
}

func NewResultPublisher(producer mq.Producer, topic string) *ResultPublisher {
	if topic == "" {
		topic = DefaultResultTopic
	}
	return &ResultPublisher{producer: producer, topic: topic}
}

func (p *ResultPublisher) Name() string { return "kafka" }

// Save publishes the run's results as a single batch.
func (p *ResultPublisher) Save(ctx context.Context, run Run) error {
	if len(run.Results) == 0 {
		return nil
	}
	msgs := make([]*mq.Message, 0, len(run.Results))
	for _, r := range run.Results {
		body, err := json.Marshal(newResultEvent(run, r))
		if err != nil {
			return appErr.Wrap(err, appErr.ResultPublishFailed)
		}
		msg := mq.NewMessage(body)
		msg.ID = run.RunID
		msg.Key = r.Key()
		msg.SetHeader(eventHeader, DefaultResultTopic)
		msgs = append(msgs, msg)
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return appErr.Wrapf(err, appErr.ResultPublishFailed, "publish %d results to %s", len(msgs), p.topic)
	}
	return nil
}

var _ Sink = (*ResultPublisher)(nil)
