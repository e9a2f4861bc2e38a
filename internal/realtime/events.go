package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Meet1306/Whiteboard/internal/boards"
)

// Client and server event names carried on the connection.
const (
	EventJoinCanvas   = "join-canvas"
	EventLeaveCanvas  = "leave-canvas"
	EventLoadCanvas   = "load-canvas"
	EventLoadComments = "load-comments"
	EventUpdateCanvas = "update-canvas"
	EventAddComment   = "add-comment"

	EventCanvasData   = "canvas-data"
	EventCommentsData = "comments-data"
	EventSyncError    = "sync-error"
)

// Sync error codes sent to the caller.
const (
	CodePersistenceFailure = "persistence_failure"
)

var (
	// ErrMalformedPayload indicates that a frame is missing required fields or is not valid JSON.
	ErrMalformedPayload = errors.New("realtime: malformed payload")
	// ErrUnknownEvent indicates an event name the gateway does not handle.
	ErrUnknownEvent = errors.New("realtime: unknown event")
)

// ClientEvent is a decoded client frame.
type ClientEvent struct {
	Name     string
	BoardID  string
	Elements []boards.Element
	Content  string
}

type clientFrame struct {
	Event    string            `json:"event"`
	CanvasID string            `json:"canvasId"`
	Elements *[]boards.Element `json:"elements"`
	Content  string            `json:"content"`
}

// DecodeClientEvent parses and validates a client frame.
func DecodeClientEvent(data []byte) (ClientEvent, error) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ClientEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	name := strings.TrimSpace(frame.Event)
	if name == "" {
		return ClientEvent{}, fmt.Errorf("%w: missing event", ErrMalformedPayload)
	}
	event := ClientEvent{Name: name, Content: frame.Content}
	if !isClientEvent(name) {
		return event, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	boardID, err := boards.NewBoardID(frame.CanvasID)
	if err != nil {
		return event, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	event.BoardID = boardID.String()

	if name == EventUpdateCanvas {
		if frame.Elements == nil {
			return event, fmt.Errorf("%w: missing elements", ErrMalformedPayload)
		}
		event.Elements = *frame.Elements
	}
	return event, nil
}

func isClientEvent(name string) bool {
	switch name {
	case EventJoinCanvas, EventLeaveCanvas, EventLoadCanvas, EventLoadComments, EventUpdateCanvas, EventAddComment:
		return true
	}
	return false
}

// ServerEvent is a frame pushed to connections.
type ServerEvent struct {
	Name     string
	BoardID  string
	Elements []boards.Element
	Comments []boards.Comment
	Code     string
}

type serverFrame struct {
	Event    string            `json:"event"`
	CanvasID string            `json:"canvasId"`
	Elements *[]boards.Element `json:"elements,omitempty"`
	Comments *[]boards.Comment `json:"comments,omitempty"`
	Code     string            `json:"code,omitempty"`
}

// CanvasData builds a full element snapshot frame.
func CanvasData(boardID string, elements []boards.Element) ServerEvent {
	return ServerEvent{Name: EventCanvasData, BoardID: boardID, Elements: elements}
}

// CommentsData builds a full comment list frame.
func CommentsData(boardID string, comments []boards.Comment) ServerEvent {
	return ServerEvent{Name: EventCommentsData, BoardID: boardID, Comments: comments}
}

// SyncError builds an error frame for the caller.
func SyncError(boardID string, code string) ServerEvent {
	return ServerEvent{Name: EventSyncError, BoardID: boardID, Code: code}
}

// MarshalJSON emits only the list that belongs to the event; lists are never null.
func (e ServerEvent) MarshalJSON() ([]byte, error) {
	frame := serverFrame{Event: e.Name, CanvasID: e.BoardID, Code: e.Code}
	switch e.Name {
	case EventCanvasData:
		elements := e.Elements
		if elements == nil {
			elements = []boards.Element{}
		}
		frame.Elements = &elements
	case EventCommentsData:
		comments := e.Comments
		if comments == nil {
			comments = []boards.Comment{}
		}
		frame.Comments = &comments
	}
	return json.Marshal(frame)
}

// UnmarshalJSON decodes a server frame.
func (e *ServerEvent) UnmarshalJSON(data []byte) error {
	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	decoded := ServerEvent{Name: frame.Event, BoardID: frame.CanvasID, Code: frame.Code}
	if frame.Elements != nil {
		decoded.Elements = *frame.Elements
	}
	if frame.Comments != nil {
		decoded.Comments = *frame.Comments
	}
	*e = decoded
	return nil
}
