package server

import (
	"testing"

	"go.uber.org/zap"
)

func TestWSConnectionSendDropsWhenFull(t *testing.T) {
	connection := newWSConnection("conn-1", nil, 1, zap.NewNop())
	if !connection.Send([]byte("first")) {
		t.Fatalf("expected first frame to be queued")
	}
	if connection.Send([]byte("second")) {
		t.Fatalf("expected second frame to be dropped")
	}
}

func TestWSConnectionSendAfterCloseIsDropped(t *testing.T) {
	connection := newWSConnection("conn-1", nil, 4, zap.NewNop())
	connection.closeSend()
	connection.closeSend()
	if connection.Send([]byte("late")) {
		t.Fatalf("expected send after close to be dropped")
	}
	if _, ok := <-connection.send; ok {
		t.Fatalf("expected send channel to be closed")
	}
}
