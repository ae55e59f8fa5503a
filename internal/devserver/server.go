// Package devserver is an in-memory chat backend for local development and
// integration tests. It serves the same routes as the production backend and
// streams a deterministic reply word by word.
package devserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/youruser/chatc/internal/api"
	"github.com/youruser/chatc/internal/logging"
)

// Options configures a Server. Zero values are usable.
type Options struct {
	// WordDelay is the pause between streamed words.
	WordDelay time.Duration
	Reply     ReplyFunc
	Logger    *logging.Logger
}

// Server handles the chat routes.
type Server struct {
	store  *Store
	reply  ReplyFunc
	delay  time.Duration
	log    *logging.Logger
	engine *gin.Engine
}

type createChatRequest struct {
	Title string `json:"title"`
}

type askRequest struct {
	Message string `json:"message" binding:"required"`
	Model   string `json:"model"`
}

func New(opts Options) *Server {
	s := &Server{
		store: NewStore(),
		reply: opts.Reply,
		delay: opts.WordDelay,
		log:   opts.Logger,
	}
	if s.reply == nil {
		s.reply = EchoReply
	}
	if s.log == nil {
		s.log = logging.Get()
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	chats := r.Group("/chats")
	{
		chats.GET("", s.listChats)
		chats.POST("", s.createChat)
		chats.GET("/:id", s.getChat)
		chats.GET("/:id/messages", s.listMessages)
		chats.POST("/:id/ask", s.ask)
		chats.GET("/:id/ask/stream", s.askStream)
		chats.GET("/:id/ask/stream-raw", s.askStreamRaw)
		chats.POST("/:id/ask/stream-raw-post", s.askStreamRawPost)
	}
	s.engine = r
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.engine }

// Store exposes the backing store, mainly for tests.
func (s *Server) Store() *Store { return s.store }

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"detail": "Chat not found"})
}

func (s *Server) listChats(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.List())
}

func (s *Server) createChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	conv := s.store.Create(req.Title)
	s.log.Debug("Created chat %s (%q)", conv.ID, conv.Title)
	c.JSON(http.StatusOK, conv)
}

func (s *Server) getChat(c *gin.Context) {
	conv, err := s.store.Get(c.Param("id"))
	if err != nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) listMessages(c *gin.Context) {
	msgs, err := s.store.Messages(c.Param("id"))
	if err != nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// begin records the user's message and computes the reply. It writes the
// error response itself and reports false on failure.
func (s *Server) begin(c *gin.Context, message string) (string, bool) {
	chatID := c.Param("id")
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "message is required"})
		return "", false
	}
	history, err := s.store.Messages(chatID)
	if err != nil {
		notFound(c)
		return "", false
	}
	if _, err := s.store.AddMessage(chatID, api.SenderUser, message); err != nil {
		notFound(c)
		return "", false
	}
	return s.reply(history, message), true
}

func (s *Server) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	reply, ok := s.begin(c, req.Message)
	if !ok {
		return
	}
	msg, err := s.store.AddMessage(c.Param("id"), api.SenderAI, reply)
	if err != nil {
		notFound(c)
		return
	}
	if req.Model != "" {
		s.log.Debug("Ask for %s with model %s", c.Param("id"), req.Model)
	}
	c.JSON(http.StatusOK, msg)
}

func (s *Server) askStream(c *gin.Context) {
	reply, ok := s.begin(c, c.Query("message"))
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	sent := s.streamWords(c, reply, func(word string) {
		c.SSEvent("message", gin.H{"text": word})
	})
	// Store before the done frame so a follow-up request sees the reply.
	s.finish(c, sent)
	if sent == reply {
		c.SSEvent("message", gin.H{"done": true})
		c.Writer.Flush()
	}
}

func (s *Server) askStreamRaw(c *gin.Context) {
	s.rawStream(c, c.Query("message"))
}

func (s *Server) askStreamRawPost(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	s.rawStream(c, req.Message)
}

func (s *Server) rawStream(c *gin.Context, message string) {
	reply, ok := s.begin(c, message)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	sent := s.streamWords(c, reply, func(word string) {
		c.Writer.WriteString(word)
	})
	s.finish(c, sent)
}

// streamWords emits reply one word at a time and returns what was sent. It
// stops early when the client goes away.
func (s *Server) streamWords(c *gin.Context, reply string, emit func(string)) string {
	ctx := c.Request.Context()
	sent := 0
	for _, word := range splitWords(reply) {
		if s.delay > 0 {
			timer := time.NewTimer(s.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return reply[:sent]
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return reply[:sent]
		}
		emit(word)
		c.Writer.Flush()
		sent += len(word)
	}
	return reply
}

// finish stores whatever part of the reply reached the client.
func (s *Server) finish(c *gin.Context, sent string) {
	chatID := c.Param("id")
	if sent == "" {
		return
	}
	if _, err := s.store.AddMessage(chatID, api.SenderAI, sent); err != nil && !errors.Is(err, ErrChatNotFound) {
		s.log.Error("Failed to store reply for %s: %v", chatID, err)
	}
}
