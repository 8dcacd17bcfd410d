package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishEncodesJSON(t *testing.T) {
	fw := &fakeWriter{}
	p := newProducer(fw, "ngram.counted")
	err := p.Publish(context.Background(),
		Message{Key: "run-1", Value: map[string]int{"wave": 1}},
		Message{Key: "run-1", Value: map[string]int{"wave": 2}},
	)
	require.NoError(t, err)
	require.Len(t, fw.msgs, 2)
	require.Equal(t, "run-1", string(fw.msgs[0].Key))

	var v map[string]int
	require.NoError(t, json.Unmarshal(fw.msgs[1].Value, &v))
	require.Equal(t, 2, v["wave"])

	require.NoError(t, p.Close())
	require.True(t, fw.closed)
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := newProducer(&fakeWriter{err: boom}, "t")
	err := p.Publish(context.Background(), Message{Key: "k", Value: 1})
	require.ErrorIs(t, err, boom)
}

func TestPublishRejectsUnencodable(t *testing.T) {
	fw := &fakeWriter{}
	p := newProducer(fw, "t")
	err := p.Publish(context.Background(), Message{Key: "k", Value: make(chan int)})
	require.Error(t, err)
	require.Empty(t, fw.msgs)
}
