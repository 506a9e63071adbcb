package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/denisenanni/portfolio/internal/contact"
	"github.com/denisenanni/portfolio/internal/pipeline"
	"github.com/denisenanni/portfolio/internal/store"
)

// streamBuffer bounds the events queued for one slow client before frames
// are dropped.
const streamBuffer = 256

func (s *Server) routes() {
	r := s.engine

	r.GET("/", s.handleIndex)
	r.GET("/behind-the-scenes", s.handleBehindTheScenes)
	r.GET("/privacy", func(c *gin.Context) {
		c.HTML(http.StatusOK, "privacy.html", gin.H{
			"title":     "Privacy Policy",
			"site":      s.site,
			"retention": fmt.Sprintf("%d days", int(s.cfg.VisitorRetention.Hours()/24)),
		})
	})
	r.GET("/healthz", s.handleHealth)

	r.GET("/pipeline.svg", s.handlePipelineSVG)
	r.GET("/pipeline/timeline", s.handleTimeline)
	r.GET("/pipeline/stream", s.handleStream)

	r.POST("/contact", s.handleContact)
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"site": s.site,
		"nav":  s.site.NavLinks(),
		"year": s.clock.Now().Year(),
	})
}

// handleBehindTheScenes returns the modal fragment with the inline diagram.
func (s *Server) handleBehindTheScenes(c *gin.Context) {
	v, _ := s.diagram("")
	c.HTML(http.StatusOK, "behind-the-scenes.html", gin.H{
		"sections": s.site.BehindTheScenes,
		"diagram":  v.animated,
		"live":     c.Query("live") == "1",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.log.Error("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handlePipelineSVG(c *gin.Context) {
	v, ok := s.diagram(c.Query("layout"))
	if !ok {
		c.String(http.StatusBadRequest, "unknown layout")
		return
	}
	body := v.animated
	if static, _ := strconv.ParseBool(c.Query("static")); static {
		body = v.static
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/svg+xml; charset=utf-8", body)
}

type timelineOp struct {
	AtMS     float64 `json:"at_ms"`
	Kind     string  `json:"kind"`
	Index    int     `json:"index"`
	Fraction float64 `json:"fraction,omitempty"`
}

type timelineStage struct {
	ID    int     `json:"id"`
	Label string  `json:"label"`
	Icon  string  `json:"icon"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

type timelineConnection struct {
	Source int    `json:"source"`
	Target int    `json:"target"`
	Dashed bool   `json:"dashed"`
	Points string `json:"points"`
}

type timelineResponse struct {
	Layout      string               `json:"layout"`
	ViewBox     string               `json:"view_box"`
	CycleMS     float64              `json:"cycle_ms"`
	Stages      []timelineStage      `json:"stages"`
	Connections []timelineConnection `json:"connections"`
	Ops         []timelineOp         `json:"ops"`
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// handleTimeline describes the diagram and one animation cycle as JSON so a
// client can drive its own rendering.
func (s *Server) handleTimeline(c *gin.Context) {
	layout := c.Query("layout")
	if layout == "" {
		layout = s.defaultLayout
	}
	v, ok := s.diagram(layout)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown layout"})
		return
	}

	tl := v.animator.Timeline()
	resp := timelineResponse{
		Layout:  layout,
		ViewBox: v.diagram.ViewBox().String(),
		CycleMS: millis(tl.Cycle),
	}
	for _, st := range v.diagram.Stages() {
		resp.Stages = append(resp.Stages, timelineStage{
			ID: st.ID, Label: st.Label, Icon: st.Icon, X: st.Position.X, Y: st.Position.Y,
		})
	}
	for _, cn := range v.diagram.Connections() {
		resp.Connections = append(resp.Connections, timelineConnection{
			Source: cn.Source, Target: cn.Target, Dashed: cn.Dashed, Points: cn.Path.Points(),
		})
	}
	for _, op := range tl.Ops {
		resp.Ops = append(resp.Ops, timelineOp{
			AtMS: millis(op.At), Kind: op.Kind.String(), Index: op.Index, Fraction: op.Fraction,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// handleStream plays the animation for this request and forwards every canvas
// mutation as a server-sent event. The animation lives exactly as long as the
// request.
func (s *Server) handleStream(c *gin.Context) {
	v, ok := s.diagram(c.Query("layout"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown layout"})
		return
	}

	events := make(chan pipeline.Event, streamBuffer)
	var dropped atomic.Int64
	canvas := pipeline.CanvasFunc(func(e pipeline.Event) {
		select {
		case events <- e:
		default:
			dropped.Add(1)
		}
	})

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	h := v.animator.Start(canvas)
	defer func() {
		h.Stop()
		s.log.Debug("pipeline stream closed",
			zap.Int("cycles", h.Cycles()),
			zap.Int64("dropped", dropped.Load()),
		)
	}()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		case e := <-events:
			c.SSEvent(e.Kind, e)
			c.Writer.Flush()
		}
	}
}

// handleContact validates, throttles, stores and delivers a contact form
// submission, answering with an HTMX fragment.
func (s *Server) handleContact(c *gin.Context) {
	msg := contact.NewMessage(c.PostForm("name"), c.PostForm("email"), c.PostForm("message"), s.clock.Now())
	if err := msg.Validate(); err != nil {
		var verr *contact.ValidationError
		fields := []string{}
		if errors.As(err, &verr) {
			fields = verr.Fields
		}
		c.HTML(http.StatusUnprocessableEntity, "contact-error.html", gin.H{
			"error":  "Please fill in all fields with a valid email address.",
			"fields": fields,
		})
		return
	}

	ctx := c.Request.Context()
	key := store.HashIP(c.ClientIP(), s.hashingSalt)
	allowed, err := s.limiter.Allow(ctx, key)
	if err != nil {
		// Fail open: a limiter outage should not lose messages.
		s.log.Warn("rate limiter unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		c.Header("Retry-After", "60")
		c.HTML(http.StatusTooManyRequests, "contact-ratelimited.html", gin.H{
			"error": "You've sent a few messages already. Please try again in a minute.",
		})
		return
	}

	record := store.Message{
		ID:        msg.ID,
		Name:      msg.Name,
		Email:     msg.Email,
		Body:      msg.Body,
		Status:    contact.StatusPending,
		CreatedAt: msg.SubmittedAt,
	}
	if err := s.store.CreateMessage(ctx, record); err != nil {
		s.log.Error("storing contact message", zap.Error(err))
		s.contactFailed(c)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	sendErr := s.sender.Send(sendCtx, msg)

	status, detail := contact.StatusSent, ""
	if sendErr != nil {
		status, detail = contact.StatusFailed, sendErr.Error()
	}
	if err := s.store.UpdateMessageStatus(ctx, msg.ID, status, detail); err != nil {
		s.log.Error("updating contact message", zap.String("id", msg.ID), zap.Error(err))
	}

	if sendErr != nil {
		s.log.Error("sending contact message", zap.String("id", msg.ID), zap.Error(sendErr))
		s.contactFailed(c)
		return
	}

	s.log.Info("contact message sent", zap.String("id", msg.ID))
	c.HTML(http.StatusOK, "contact-success.html", gin.H{
		"success": "Thank you for your message! I'll get back to you soon.",
	})
}

func (s *Server) contactFailed(c *gin.Context) {
	c.HTML(http.StatusOK, "contact-error.html", gin.H{
		"error": "Sorry, there was an error sending your message. Please try again later.",
	})
}
