package realtime

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/Meet1306/Whiteboard/internal/boards"
)

func TestDecodeClientEventUpdateCanvas(t *testing.T) {
	event, err := DecodeClientEvent([]byte(`{"event":"update-canvas","canvasId":" b1 ","elements":[{"type":"rectangle","id":"r"}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Name != EventUpdateCanvas || event.BoardID != "b1" {
		t.Fatalf("unexpected event %+v", event)
	}
	if len(event.Elements) != 1 || event.Elements[0].Kind() != boards.ElementKindRectangle {
		t.Fatalf("unexpected elements %+v", event.Elements)
	}

	empty, err := DecodeClientEvent([]byte(`{"event":"update-canvas","canvasId":"b1","elements":[]}`))
	if err != nil {
		t.Fatalf("empty list must be accepted: %v", err)
	}
	if len(empty.Elements) != 0 {
		t.Fatalf("expected no elements, got %d", len(empty.Elements))
	}
}

func TestDecodeClientEventUnknown(t *testing.T) {
	event, err := DecodeClientEvent([]byte(`{"event":"wave"}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
	if event.Name != "wave" {
		t.Fatalf("expected event name to be reported, got %q", event.Name)
	}
}

func TestServerEventEncodesEmptyListsAsArrays(t *testing.T) {
	encoded, err := json.Marshal(CanvasData("b1", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(encoded) != `{"event":"canvas-data","canvasId":"b1","elements":[]}` {
		t.Fatalf("unexpected canvas-data frame %s", encoded)
	}
	encoded, err = json.Marshal(CommentsData("b1", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(encoded) != `{"event":"comments-data","canvasId":"b1","comments":[]}` {
		t.Fatalf("unexpected comments-data frame %s", encoded)
	}
	encoded, err = json.Marshal(SyncError("b1", CodePersistenceFailure))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(encoded) != `{"event":"sync-error","canvasId":"b1","code":"persistence_failure"}` {
		t.Fatalf("unexpected sync-error frame %s", encoded)
	}
}
