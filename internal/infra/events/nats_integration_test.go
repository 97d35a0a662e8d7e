//go:build integration

package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"reconledger/internal/domain"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func TestNATSPublisherDeliversJSON(t *testing.T) {
	url := os.Getenv("NATS_URL_TEST")
	if url == "" {
		t.Skip("NATS_URL_TEST not set")
	}
	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("itest.ledger.ticket.created", msgs)
	require.NoError(t, err)
	defer func() { _ = s.Unsubscribe() }()
	require.NoError(t, sub.Flush())

	pub, err := NewNATSPublisher(NATSConfig{URL: url, SubjectPrefix: "itest"}, nil)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.Publish(context.Background(), domain.LedgerEvent{
		Type: domain.EventTicketCreated,
		Key:  "T-1",
	}))

	select {
	case msg := <-msgs:
		var got domain.LedgerEvent
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		require.Equal(t, "T-1", got.Key)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}
