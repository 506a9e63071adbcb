// Package server is the HTTP surface of the portfolio: the page, its HTMX
// fragments, the pipeline diagram endpoints, the contact form and the admin
// area.
package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/denisenanni/portfolio/internal/config"
	"github.com/denisenanni/portfolio/internal/contact"
	"github.com/denisenanni/portfolio/internal/content"
	"github.com/denisenanni/portfolio/internal/pipeline"
	"github.com/denisenanni/portfolio/internal/ratelimit"
	"github.com/denisenanni/portfolio/internal/store"
	"github.com/denisenanni/portfolio/internal/timeutil"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// Deps are the collaborators a Server is built from.
type Deps struct {
	Config  *config.Config
	Site    *content.Site
	Store   *store.Store
	Sender  contact.Sender
	Limiter ratelimit.Limiter
	// Clock defaults to real time.
	Clock timeutil.Clock
	// Log defaults to a no-op logger.
	Log *zap.Logger
}

// diagramView is one layout of the pipeline, rendered once at startup.
type diagramView struct {
	diagram  *pipeline.Diagram
	animator *pipeline.Animator
	static   []byte
	animated []byte
}

type Server struct {
	cfg     *config.Config
	site    *content.Site
	store   *store.Store
	sender  contact.Sender
	limiter ratelimit.Limiter
	clock   timeutil.Clock
	log     *zap.Logger

	engine        *gin.Engine
	diagrams      map[string]*diagramView
	defaultLayout string

	adminToken  string
	hashingSalt string

	closing   chan struct{}
	closeOnce sync.Once
}

// New wires the routes. It fails when the configured pipeline layout cannot
// hold the content's stages.
func New(d Deps) (*Server, error) {
	if d.Config == nil || d.Site == nil || d.Store == nil {
		return nil, errors.New("server: config, site and store are required")
	}
	if d.Clock == nil {
		d.Clock = timeutil.RealClock{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Sender == nil {
		d.Sender = contact.NopSender{Log: d.Log}
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.Disabled{}
	}

	s := &Server{
		cfg:         d.Config,
		site:        d.Site,
		store:       d.Store,
		sender:      d.Sender,
		limiter:     d.Limiter,
		clock:       d.Clock,
		log:         d.Log,
		diagrams:    make(map[string]*diagramView),
		adminToken:  randomToken(),
		hashingSalt: d.Config.VisitorHashSalt,
		closing:     make(chan struct{}),
	}

	if s.hashingSalt == "" {
		s.hashingSalt = randomToken()
		s.log.Warn("VISITOR_HASH_SALT not set, client hashes change on restart")
	}

	s.defaultLayout = d.Config.PipelineLayout
	if s.defaultLayout == "" {
		s.defaultLayout = d.Site.Pipeline.Layout
	}
	if s.defaultLayout == "" {
		s.defaultLayout = pipeline.LayoutSquare
	}
	if err := s.buildDiagrams(); err != nil {
		return nil, err
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	s.engine = gin.New()
	s.engine.Use(requestLogger(s.log), gin.Recovery())
	if d.Config.TrackVisitors {
		s.engine.Use(s.visitorTracking())
	}
	s.engine.SetHTMLTemplate(tmpl)

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}
	s.engine.StaticFS("/static", http.FS(static))

	s.routes()
	s.adminRoutes()

	s.log.Info("admin access available at /admin/login")
	if !d.Config.Release() {
		s.log.Debug("admin token (dev only)", zap.String("token", s.adminToken))
	}
	if d.Config.TrackVisitors {
		s.log.Info("visitor tracking enabled with hashed IP addresses")
	}
	return s, nil
}

// buildDiagrams renders every layout the content fits. The default layout
// must succeed; others are skipped when the stage count does not fit.
func (s *Server) buildDiagrams() error {
	for _, name := range pipeline.ValidLayouts {
		v, err := s.buildDiagram(name)
		if err != nil {
			if name == s.defaultLayout {
				return fmt.Errorf("building %s pipeline: %w", name, err)
			}
			s.log.Debug("pipeline layout unavailable", zap.String("layout", name), zap.Error(err))
			continue
		}
		s.diagrams[name] = v
	}
	if _, ok := s.diagrams[s.defaultLayout]; !ok {
		return fmt.Errorf("building pipeline: %w %q", pipeline.ErrUnknownLayout, s.defaultLayout)
	}
	return nil
}

func (s *Server) buildDiagram(layout string) (*diagramView, error) {
	d, err := s.site.Diagram(layout)
	if err != nil {
		return nil, err
	}
	a, err := pipeline.NewAnimator(d, s.cfg.Timing, s.clock, s.log.Named("pipeline"))
	if err != nil {
		return nil, err
	}

	var static, animated bytes.Buffer
	if err := pipeline.RenderSVG(&static, d, pipeline.RenderOptions{Timing: s.cfg.Timing}); err != nil {
		return nil, err
	}
	if err := pipeline.RenderSVG(&animated, d, pipeline.RenderOptions{Animated: true, Timing: s.cfg.Timing}); err != nil {
		return nil, err
	}
	return &diagramView{diagram: d, animator: a, static: static.Bytes(), animated: animated.Bytes()}, nil
}

// diagram resolves a layout query value; empty means the default.
func (s *Server) diagram(layout string) (*diagramView, bool) {
	if layout == "" {
		layout = s.defaultLayout
	}
	v, ok := s.diagrams[layout]
	return v, ok
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on the configured port until ctx is done, then drains in-flight
// requests. Open event streams are told to finish first.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(s.closeStreams)

	errc := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (s *Server) closeStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func randomToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("generating token: %v", err))
	}
	return hex.EncodeToString(b)
}

type sectionHeading struct {
	Number string
	Title  string
}

var templateFuncs = template.FuncMap{
	"svg": func(b []byte) template.HTML {
		// Rendered by pipeline.RenderSVG, which escapes every label.
		return template.HTML(b)
	},
	"heading": func(n int, title string) sectionHeading {
		return sectionHeading{Number: content.SectionNumber(n), Title: title}
	},
	"datetime": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04")
	},
}
