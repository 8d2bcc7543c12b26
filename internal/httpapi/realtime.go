package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/fanout"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/hub"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

const (
	clientBuffer  = 32
	lookupTimeout = 5 * time.Second
)

type realtimeReply struct {
	Event  string `json:"event"`
	SiteID string `json:"site_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (h *Handler) realtimeHandler() http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, h.serveRealtime)
}

// serveRealtime runs one display connection. Displays are anonymous; they
// only pick which sites to follow.
func (h *Handler) serveRealtime(session sockjs.Session) {
	client := hub.NewClient(uuid.NewString(), clientBuffer)
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	go func() {
		for msg := range client.Send {
			_ = session.Send(string(msg))
		}
	}()

	for {
		msg, err := session.Recv()
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		reply := h.applyCommand(ctx, client, msg)
		cancel()
		encoded, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		if err := session.Send(string(encoded)); err != nil {
			return
		}
	}
}

func (h *Handler) applyCommand(ctx context.Context, client *hub.Client, raw string) realtimeReply {
	cmd, ok := hub.ParseCommand([]byte(raw))
	if !ok {
		return realtimeReply{Event: "error", Error: "invalid_command"}
	}
	scope := fanout.SiteScope(cmd.SiteID)
	if cmd.Action == "leave" {
		h.hub.Leave(client, scope)
		return realtimeReply{Event: "left", SiteID: cmd.SiteID}
	}
	if !isValidUUID(cmd.SiteID) {
		return realtimeReply{Event: "error", SiteID: cmd.SiteID, Error: "site_not_found"}
	}
	if _, err := h.catalog.GetSite(ctx, cmd.SiteID); err != nil {
		code := "internal_error"
		if errors.Is(err, store.ErrNotFound) {
			code = "site_not_found"
		}
		return realtimeReply{Event: "error", SiteID: cmd.SiteID, Error: code}
	}
	h.hub.Join(client, scope)
	return realtimeReply{Event: "joined", SiteID: cmd.SiteID}
}
