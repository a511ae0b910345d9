// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bridge exposes a session engine to host applications over a
// websocket. Hosts send write and read requests and receive session
// outcomes plus live alert and state events.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-fishtag"
	"github.com/ZaparooProject/go-fishtag/internal/syncutil"
	"github.com/ZaparooProject/go-fishtag/session"
)

const (
	writeWait       = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Engine is the part of session.Engine the bridge drives.
type Engine interface {
	Write(ctx context.Context, record fishtag.TagRecord) (fishtag.SessionOutcome, error)
	Read(ctx context.Context) (fishtag.ReadOutcome, error)
	Invalidate()
	Codec() *fishtag.Codec
}

type client struct {
	conn *websocket.Conn
	id   string
	mu   syncutil.Mutex
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Server serves the websocket and health endpoints.
type Server struct {
	engine   Engine
	clients  map[*client]struct{}
	log      zerolog.Logger
	upgrader websocket.Upgrader
	wg       sync.WaitGroup
	mu       syncutil.RWMutex
}

// New creates a bridge for engine. Wire Alert and StateChange into the
// engine's session.Config to forward events.
func New(engine Engine, log zerolog.Logger) *Server {
	return &Server{
		engine:  engine,
		clients: make(map[*client]struct{}),
		log:     log.With().Str("component", "bridge").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the bridge routes: /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebsocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Serve accepts connections on ln until ctx is done, then shuts down and
// waits for running sessions.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("bridge listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.engine.Invalidate()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("shutdown")
	}
	s.closeClients()
	s.wg.Wait()
	return nil
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	return syncutil.Read(&s.mu, func() int { return len(s.clients) })
}

// Alert forwards a session alert to every client.
func (s *Server) Alert(sessionID, message string) {
	s.broadcast(Event{Type: EventAlert, SessionID: sessionID, Message: message})
}

// StateChange forwards a session transition to every client.
func (s *Server) StateChange(sessionID string, from, to session.State) {
	s.broadcast(Event{Type: EventState, SessionID: sessionID, From: from.String(), To: to.String()})
}

func (s *Server) broadcast(ev Event) {
	s.mu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(ev); err != nil {
			s.log.Debug().Err(err).Str("client", c.id).Msg("event not delivered")
		}
	}
}

func (s *Server) closeClients() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		_ = c.conn.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.Clients(),
	})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, id: uuid.New().String()}
	syncutil.With(&s.mu, func() { s.clients[c] = struct{}{} })
	log := s.log.With().Str("client", c.id).Logger()
	log.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	// Sessions started by this client end when it disconnects.
	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		syncutil.With(&s.mu, func() { delete(s.clients, c) })
		_ = conn.Close()
		log.Info().Msg("client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket read")
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.reply(c, Response{Type: "error", Code: CodeParseError, Error: err.Error()})
			continue
		}
		if req.ID == "" {
			req.ID = uuid.New().String()
		}
		s.dispatch(ctx, c, req)
	}
}

func (s *Server) dispatch(ctx context.Context, c *client, req Request) {
	switch req.Type {
	case TypeWrite:
		var p WritePayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			s.reply(c, failed(req, CodeInvalidPayload, err))
			return
		}
		record, err := p.Record()
		if err != nil {
			s.reply(c, failed(req, CodeInvalidPayload, err))
			return
		}
		s.run(func() { s.reply(c, s.write(ctx, req, record)) })
	case TypeRead:
		s.run(func() { s.reply(c, s.read(ctx, req)) })
	case TypeDecode:
		s.reply(c, s.decode(req))
	case TypeCancel:
		s.engine.Invalidate()
		s.reply(c, Response{ID: req.ID, Type: req.Type, Success: true})
	default:
		s.reply(c, failed(req, CodeUnknownType, fmt.Errorf("unknown request type %q", req.Type)))
	}
}

func (s *Server) run(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Server) write(ctx context.Context, req Request, record fishtag.TagRecord) Response {
	out, err := s.engine.Write(ctx, record)
	if err != nil {
		code := CodeInvalidPayload
		if errors.Is(err, fishtag.ErrDiscoveryUnavailable) {
			code = CodeUnavailable
		}
		resp := failed(req, code, err)
		if out.Failure != nil {
			resp.Payload = outcomePayload(out)
		}
		return resp
	}
	return sessionResponse(req, out, outcomePayload(out))
}

func (s *Server) read(ctx context.Context, req Request) Response {
	out, err := s.engine.Read(ctx)
	p := outcomePayload(out.SessionOutcome)
	p.Record = recordPayload(out.Record)
	if out.DecodeErr != nil {
		p.DecodeError = out.DecodeErr.Error()
	}
	if err != nil {
		resp := failed(req, CodeUnavailable, err)
		resp.Payload = p
		return resp
	}
	return sessionResponse(req, out.SessionOutcome, p)
}

func (s *Server) decode(req Request) Response {
	var p DecodePayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return failed(req, CodeInvalidPayload, err)
	}
	rec, err := s.engine.Codec().DecodeDelivered(p.Message)
	if err != nil {
		return failed(req, CodeDecodeFailed, err)
	}
	return Response{ID: req.ID, Type: req.Type, Success: true, Payload: recordPayload(rec)}
}

func (s *Server) reply(c *client, resp Response) {
	if err := c.send(resp); err != nil {
		s.log.Debug().Err(err).Str("client", c.id).Str("request", resp.ID).Msg("response not delivered")
	}
}

func sessionResponse(req Request, out fishtag.SessionOutcome, p *OutcomePayload) Response {
	resp := Response{ID: req.ID, Type: req.Type, Success: out.Success(), Payload: p}
	if !out.Success() {
		resp.Code = CodeSessionFailed
		resp.Error = out.Message
	}
	return resp
}

func failed(req Request, code string, err error) Response {
	return Response{ID: req.ID, Type: req.Type, Code: code, Error: err.Error()}
}
