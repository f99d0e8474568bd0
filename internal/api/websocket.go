package api

import (
	"log"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"quant-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamedEvents is the set forwarded over /ws.
var streamedEvents = []events.Event{
	events.EventBarClosed,
	events.EventSignalGenerated,
	events.EventSignalRejected,
	events.EventOrderSubmitted,
	events.EventOrderFilled,
	events.EventOrderFailed,
	events.EventSymbolDegraded,
	events.EventGapDetected,
	events.EventBootstrapComplete,
	events.EventMonitorStopped,
}

type wsEnvelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	// Fan the subscribed streams into one select set.
	cases := make([]reflect.SelectCase, 0, len(streamedEvents)+1)
	names := make([]string, 0, len(streamedEvents))
	for _, ev := range streamedEvents {
		ch, unsub := s.Bus.Subscribe(ev, 100)
		defer unsub()
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(ch),
		})
		names = append(names, string(ev))
	}
	done := c.Request.Context().Done()
	cases = append(cases, reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(done),
	})

	for {
		idx, value, ok := reflect.Select(cases)
		if idx == len(names) || !ok {
			return
		}
		msg := wsEnvelope{Event: names[idx], Payload: value.Interface()}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
