package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"learner-progress-service/internal/app"
)

// WSHandler streams committed progress changes to a connected client and
// accepts step commands from it.
type WSHandler struct {
	service  *app.ProgressService
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewWSHandler(service *app.ProgressService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type commandPayload struct {
	ModuleID string `json:"moduleId"`
	Question int    `json:"question"`
	Answer   int    `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request and wires the socket into the progress use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.service.Subscribe()
	defer cancel()

	overview, err := h.service.Overview(r.Context())
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer; gorilla connections do not allow concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "event", Payload: ev}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	enqueue := func(msg outboundMessage[any]) bool {
		return enqueueMessage(send, writerDone, msg)
	}

	if !enqueue(outboundMessage[any]{Type: "snapshot", Payload: overview}) {
		close(closeSignals)
		<-updatesDone
		close(send)
		return
	}

read:
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break read
		}
		var payload commandPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			if !enqueue(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid command payload"}}) {
				break read
			}
			continue
		}

		var (
			res app.Result
			err error
		)
		switch inbound.Type {
		case "advance":
			res, err = h.service.Advance(r.Context(), payload.ModuleID)
		case "retreat":
			res, err = h.service.Retreat(r.Context(), payload.ModuleID)
		case "answer":
			res, err = h.service.AnswerPostTest(r.Context(), payload.ModuleID, payload.Question, payload.Answer)
		default:
			if !enqueue(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}) {
				break read
			}
			continue
		}
		if err != nil {
			if !enqueue(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}) {
				break read
			}
			continue
		}
		if !enqueue(outboundMessage[any]{Type: "result", Payload: res}) {
			break read
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// enqueueMessage hands msg to the writer and reports false once the writer
// has stopped, so a dead connection never blocks the read loop.
func enqueueMessage(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}
