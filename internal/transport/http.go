package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dungeongate/bancho/internal/bancho"
	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
)

const landingPage = `<!DOCTYPE html>
<html><head><title>bancho</title></head>
<body><pre>running</pre></body></html>`

// HTTPServer is the long-poll adapter: every request carries one frame of
// the same byte stream a TCP connection would otherwise see continuously.
type HTTPServer struct {
	svc    *bancho.Service
	server *http.Server
	logger *slog.Logger
}

// NewHTTPServer constructs an HTTPServer bound to svc.
func NewHTTPServer(svc *bancho.Service, logger *slog.Logger) *HTTPServer {
	return &HTTPServer{svc: svc, logger: logger}
}

// Start begins serving addr in the background.
func (h *HTTPServer) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handle)

	h.server = &http.Server{Addr: addr, Handler: mux}
	h.logger.Info("http server listening", "address", addr)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (h *HTTPServer) Stop(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, landingPage)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("server", "bancho")
	w.Header().Set("cho-protocol", fmt.Sprintf("%d", h.svc.Cfg.Protocol.Version))

	token := r.Header.Get("osu-token")
	if token == "" {
		h.login(w, r)
		return
	}
	h.poll(w, r, token)
}

func (h *HTTPServer) login(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	username, passwordMD5, clientData, ok := splitHandshake(string(body))
	if !ok {
		http.Error(w, "malformed handshake", http.StatusBadRequest)
		return
	}

	s := player.New(player.TransportHTTP, r.RemoteAddr)
	token := uuid.NewString()
	s.SetToken(token)

	rawTerminate, err := h.svc.Login(r.Context(), s, username, passwordMD5, clientData)
	if rawTerminate != nil {
		w.Header().Set("cho-token", token)
		_, _ = w.Write(rawTerminate)
		return
	}
	if err != nil {
		h.logger.Info("http login rejected", "user", username, "error", err)
		w.Header().Set("cho-token", token)
		_, _ = w.Write(s.DrainOutbound())
		return
	}

	w.Header().Set("cho-token", token)
	_, _ = w.Write(s.DrainOutbound())
	h.logger.Info("http login accepted", "user", username, "user_id", s.ID())
}

func (h *HTTPServer) poll(w http.ResponseWriter, r *http.Request, token string) {
	s, ok := h.svc.Registry.ByToken(token)
	if !ok {
		w.Header().Set("cho-token", "")
		http.Error(w, "unknown token", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if len(body) > 0 {
		if err := h.dispatchStream(r.Context(), s, body); err != nil {
			h.logger.Warn("http decode error", "user_id", s.ID(), "error", err)
			h.svc.Router.BotBroadcast(r.Context(), "#admin", fmt.Sprintf("client error for user %d: %v", s.ID(), err))
			http.Error(w, "decode error", http.StatusInternalServerError)
			_, _ = w.Write(s.DrainOutbound())
			return
		}
	}

	w.Header().Set("cho-token", token)
	_, _ = w.Write(s.DrainOutbound())
}

// dispatchStream decodes every frame found in a polled request body in
// sequence, mirroring a TCP connection's inbound loop for one batch.
func (h *HTTPServer) dispatchStream(ctx context.Context, s *player.Session, body []byte) error {
	src := bytes.NewReader(body)
	for src.Len() > 0 {
		frame, err := protocol.ReadFrame(src)
		if err != nil {
			return err
		}
		if err := h.svc.Dispatch(ctx, s, protocol.RequestID(frame.ID), frame.Payload); err != nil {
			h.logger.Warn("dispatch error", "user_id", s.ID(), "error", err)
		}
	}
	return nil
}

// splitHandshake parses the three LF-delimited handshake lines from an
// HTTP login request body.
func splitHandshake(body string) (username, passwordMD5, clientData string, ok bool) {
	lines := make([]string, 0, 3)
	start := 0
	for i := 0; i < len(body) && len(lines) < 3; i++ {
		if body[i] == '\n' {
			line := body[start:i]
			line = trimCR(line)
			lines = append(lines, line)
			start = i + 1
		}
	}
	if len(lines) < 3 && start < len(body) {
		lines = append(lines, trimCR(body[start:]))
	}
	if len(lines) != 3 {
		return "", "", "", false
	}
	return lines[0], lines[1], lines[2], true
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}
