// Package httpapi exposes routers over HTTP. Paths have the form
// /{environment}/{router}/{key}; GET on a plural router segment searches.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-repository-router/router"
)

var logger = loggo.GetLogger("router.httpapi")

// Server dispatches HTTP requests to the routers of a directory.
type Server struct {
	dir      *router.Directory
	gatherer prometheus.Gatherer
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves the metrics of g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewServer returns a server for the routers of dir.
func NewServer(dir *router.Directory, opts ...Option) *Server {
	s := &Server{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns a gin engine serving s.
func (s *Server) Engine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), accessLog())
	s.Attach(engine)
	return engine
}

// Attach registers the handlers of s on engine. Every path not claimed by
// another route is dispatched to a router.
func (s *Server) Attach(engine *gin.Engine) {
	if s.gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	engine.NoRoute(s.handle)
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("%s %s %d %v", c.Request.Method, c.Request.URL.RequestURI(), c.Writer.Status(), time.Since(start))
	}
}

// peerNode returns the common name of the verified client certificate.
func peerNode(r *http.Request) string {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return ""
	}
	return r.TLS.PeerCertificates[0].Subject.CommonName
}

func (s *Server) handle(c *gin.Context) {
	opts := []router.RequestOption{router.WithIP(c.ClientIP())}
	if node := peerNode(c.Request); node != "" {
		opts = append(opts, router.WithNode(node))
	}

	req, err := ParseURI(c.Request.Method, c.Request.URL.EscapedPath(), c.Request.URL.Query(), opts...)
	if err != nil {
		fail(c, err)
		return
	}

	r := s.dir.Instance(req.RouterName())
	if r == nil {
		fail(c, errors.NotFoundf("router %q", req.RouterName()))
		return
	}

	ctx := c.Request.Context()
	options := router.WithOptions(req.Options())

	switch req.Method() {
	case router.OpFind:
		instance, err := r.Find(ctx, req.Key(), options)
		if err != nil {
			fail(c, err)
			return
		}
		if instance == nil {
			fail(c, errors.NotFoundf("%s %q", r.Name(), req.Key()))
			return
		}
		c.JSON(http.StatusOK, instance)

	case router.OpSearch:
		results, err := r.Search(ctx, req.Key(), options)
		if err != nil {
			fail(c, err)
			return
		}
		if results == nil {
			results = []router.Instance{}
		}
		c.JSON(http.StatusOK, results)

	case router.OpSave:
		instance := r.Model().NewInstance(req.Key())
		if err := c.ShouldBindJSON(instance); err != nil {
			fail(c, errors.NewNotValid(err, "decoding request body"))
			return
		}
		if instance.Name() != req.Key() {
			fail(c, errors.NotValidf("instance named %q saved under key %q", instance.Name(), req.Key()))
			return
		}
		result, err := r.Save(ctx, instance, options)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, result)

	case router.OpDestroy:
		result, err := r.Destroy(ctx, req.Key(), options)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// Status returns the HTTP status reported for err.
func Status(err error) int {
	switch {
	case errors.Is(err, errors.NotValid):
		return http.StatusBadRequest
	case errors.Is(err, errors.Unauthorized):
		return http.StatusForbidden
	case errors.Is(err, errors.NotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.NotSupported):
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
