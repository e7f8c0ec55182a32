package sink

import (
	"chat-dm/domain/event"
	"chat-dm/errors"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectionSink_Consume_Queues_Events_In_Order(t *testing.T) {
	req := require.New(t)
	sink := NewConnectionSink("alice", 4, time.Second)

	req.NoError(sink.Consume(context.Background(), event.UserOnline{UserID: "bob"}))
	req.NoError(sink.Consume(context.Background(), event.UserOffline{UserID: "bob"}))

	req.Equal(event.UserOnline{UserID: "bob"}, <-sink.Events())
	req.Equal(event.UserOffline{UserID: "bob"}, <-sink.Events())
	req.Equal("alice", sink.UserID())
	req.False(sink.CreatedAt().IsZero())
}

func TestConnectionSink_Consume_Times_Out_When_Buffer_Is_Full(t *testing.T) {
	req := require.New(t)
	sink := NewConnectionSink("alice", 1, 10*time.Millisecond)

	// Given a full buffer nobody drains
	req.NoError(sink.Consume(context.Background(), event.UserOnline{UserID: "bob"}))

	// Then the next delivery gives up after the timeout
	err := sink.Consume(context.Background(), event.UserOnline{UserID: "carol"})
	req.ErrorIs(err, errors.ErrDeliveryTimeout)
}

func TestConnectionSink_Consume_After_Close(t *testing.T) {
	req := require.New(t)
	sink := NewConnectionSink("alice", 1, time.Second)

	sink.Close()
	sink.Close()

	err := sink.Consume(context.Background(), event.UserOnline{UserID: "bob"})
	req.ErrorIs(err, errors.ErrConnectionClosed)

	select {
	case <-sink.Done():
	default:
		req.Fail("done channel should be closed")
	}
}

func TestConnectionSink_Distinct_Ids(t *testing.T) {
	req := require.New(t)
	req.NotEqual(NewConnectionSink("alice", 1, time.Second).ID(), NewConnectionSink("alice", 1, time.Second).ID())
}
