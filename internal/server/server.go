package server

import (
	"context"
	"fmt"
	"messenger/internal/messenger"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger        *zap.SugaredLogger
	httpServer    *http.Server
	afterShutdown []func()
}

// NewServer returns new Server serving the messenger operations over HTTP
func NewServer(logger *zap.SugaredLogger, m *messenger.Messenger, opts ...Option) (*Server, error) {
	h := &handler{
		logger:        logger,
		accounts:      m.Accounts,
		relationships: m.Relationships,
		chats:         m.Chats,
		messages:      m.Messages,
		parsers: parsers{
			usersPool:         fastjson.ParserPool{},
			relationshipsPool: fastjson.ParserPool{},
			chatsPool:         fastjson.ParserPool{},
			messagesPool:      fastjson.ParserPool{},
		},
	}

	cfg := &config{
		httpServer: &http.Server{Addr: "0.0.0.0:9000"},
		handlers: map[string]http.Handler{
			"/users/add":    http.HandlerFunc(h.createUser),
			"/users/login":  http.HandlerFunc(h.logIn),
			"/users/delete": http.HandlerFunc(h.deleteUser),

			"/contacts/add":    http.HandlerFunc(h.addContact),
			"/contacts/delete": http.HandlerFunc(h.removeContact),
			"/contacts/get":    http.HandlerFunc(h.contacts),
			"/blocked/add":     http.HandlerFunc(h.addBlocked),
			"/blocked/delete":  http.HandlerFunc(h.removeBlocked),
			"/blocked/get":     http.HandlerFunc(h.blocked),

			"/chats/add":         http.HandlerFunc(h.createChat),
			"/chats/members/add": http.HandlerFunc(h.addChatMember),
			"/chats/delete":      http.HandlerFunc(h.deleteChat),
			"/chats/get":         http.HandlerFunc(h.chatsByUser),

			"/messages/add":    http.HandlerFunc(h.createMessage),
			"/messages/edit":   http.HandlerFunc(h.editMessage),
			"/messages/delete": http.HandlerFunc(h.deleteMessage),
			"/messages/get":    http.HandlerFunc(h.messagesByChat),
		},
	}

	for _, opt := range opts {
		opt.apply(cfg)
	}

	// middlewares wrap whatever the options left in place, log being the outermost
	applyEnforcePOSTJSON().apply(cfg)
	applyLog(logger.Desugar()).apply(cfg)
	registerHandlers().apply(cfg)

	return &Server{
		logger:        logger,
		httpServer:    cfg.httpServer,
		afterShutdown: cfg.afterShutdown,
	}, nil
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	for _, f := range s.afterShutdown {
		f()
	}

	return nil
}
