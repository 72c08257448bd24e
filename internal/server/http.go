// Package server exposes a Session over HTTP: tile, composite, and stats
// endpoints, following the Get(ctx, path)-then-ServeHTTP split the teacher's
// pmtiles/server.go and caddy/pmtiles_proxy.go both use to keep routing
// logic testable without a live listener.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sarstream/sarstream/internal/composite"
	"github.com/sarstream/sarstream/internal/sarerr"
	"github.com/sarstream/sarstream/internal/session"
	"github.com/sarstream/sarstream/internal/stats"
	"github.com/sarstream/sarstream/internal/tileservice"
	"go.uber.org/zap"
)

// Response is what Get returns: a status code, content type, and body,
// independent of net/http so it can be unit tested without a ResponseWriter.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Server answers tile/composite/stats requests against a Session.
type Server struct {
	sess *session.Session
	log  *zap.Logger
}

func New(sess *session.Session, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{sess: sess, log: log}
}

// Get routes a request path to the matching handler and returns a
// Response, with no dependency on net/http's ResponseWriter.
func (s *Server) Get(ctx context.Context, path string, query map[string]string) Response {
	switch {
	case strings.HasPrefix(path, "/tile/"):
		return s.getTile(ctx, strings.TrimPrefix(path, "/tile/"), query)
	case strings.HasPrefix(path, "/composite/"):
		return s.getComposite(ctx, strings.TrimPrefix(path, "/composite/"), query)
	case strings.HasPrefix(path, "/stats/"):
		return s.getStats(ctx, strings.TrimPrefix(path, "/stats/"), query)
	default:
		return Response{Status: http.StatusNotFound, ContentType: "text/plain", Body: []byte("not found")}
	}
}

// ServeHTTP adapts Get to the standard library, mirroring
// caddy/pmtiles_proxy.go's ServeHTTP wrapper around pmtiles.Loop.Get.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := map[string]string{}
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}
	resp := s.Get(r.Context(), r.URL.Path, query)
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

// MetricsHandler exposes the session's Prometheus registry as an http.Handler for
// mounting at /metrics.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.sess.Metrics(), promhttp.HandlerOpts{})
}

// getTile handles GET /tile/<productURL-escaped>/<hdf5-path-escaped>/<stride>/<row>/<col>.
func (s *Server) getTile(ctx context.Context, rest string, query map[string]string) Response {
	productURL, hdf5Path, stride, row, col, err := parseTilePath(rest)
	if err != nil {
		return errorResponse(err)
	}
	if _, err := s.sess.OpenProduct(ctx, productURL); err != nil {
		return errorResponse(err)
	}
	key := tileservice.Key{DatasetPath: productURL + "#" + hdf5Path, Stride: stride, Row: row, Col: col}
	tile, err := s.sess.Tiles().GetTile(ctx, key)
	if err != nil {
		s.log.Warn("tile request failed", zap.String("key", key.String()), zap.Error(err))
		return errorResponse(err)
	}
	body, err := json.Marshal(tile.Data)
	if err != nil {
		return Response{Status: http.StatusInternalServerError, ContentType: "text/plain", Body: []byte(err.Error())}
	}
	return Response{Status: http.StatusOK, ContentType: "application/json", Body: body}
}

func (s *Server) getComposite(ctx context.Context, rest string, query map[string]string) Response {
	productURL, presetName, stride, row, col, err := parseTilePath(rest)
	if err != nil {
		return errorResponse(err)
	}
	p, err := s.sess.OpenProduct(ctx, productURL)
	if err != nil {
		return errorResponse(err)
	}

	var preset composite.Preset
	found := false
	for _, candidate := range composite.Catalogue {
		if candidate.Name == presetName {
			preset, found = candidate, true
			break
		}
	}
	if !found {
		available := map[string]bool{}
		for _, g := range p.Model.Grids {
			for pol := range g.Channels {
				available[pol] = true
			}
		}
		preset, found = composite.AutoSelect(available)
		if !found {
			return errorResponse(sarerr.New(sarerr.NotFound, "no composite preset matches available channels"))
		}
	}

	channelPaths := map[string]string{}
	for _, g := range p.Model.Grids {
		for pol, ch := range g.Channels {
			channelPaths[pol] = productURL + "#" + ch.DatasetPath
		}
	}

	rgb, err := s.sess.Composites().GetCompositeTile(ctx, channelPaths, preset, stride, row, col)
	if err != nil {
		return errorResponse(err)
	}
	body, err := json.Marshal(rgb)
	if err != nil {
		return Response{Status: http.StatusInternalServerError, ContentType: "text/plain", Body: []byte(err.Error())}
	}
	return Response{Status: http.StatusOK, ContentType: "application/json", Body: body}
}

func (s *Server) getStats(ctx context.Context, rest string, query map[string]string) Response {
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return errorResponse(sarerr.New(sarerr.DecodeError, "stats path must be <product>/<hdf5-path>"))
	}
	productURL, hdf5Path := parts[0], parts[1]
	if _, err := s.sess.OpenProduct(ctx, productURL); err != nil {
		return errorResponse(err)
	}
	opts := stats.Options{Stride: 8}
	if v, ok := query["stride"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Stride = n
		}
	}
	if v, ok := query["bins"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Bins = n
		}
	}
	if v, ok := query["use_db"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.UseDB = b
		}
	}
	statsResult, err := stats.ViewportStats(ctx, s.sess.Tiles(), productURL+"#"+hdf5Path, opts, 0, 0, tileservice.TileSize*8, tileservice.TileSize*8)
	if err != nil && statsResult.SampleSize == 0 {
		return errorResponse(err)
	}
	body, err := json.Marshal(statsResult)
	if err != nil {
		return Response{Status: http.StatusInternalServerError, ContentType: "text/plain", Body: []byte(err.Error())}
	}
	return Response{Status: http.StatusOK, ContentType: "application/json", Body: body}
}

func errorResponse(err error) Response {
	status := http.StatusInternalServerError
	if sarerr.Is(err, sarerr.NotFound) {
		status = http.StatusNotFound
	} else if sarerr.Is(err, sarerr.Cancelled) {
		status = 499
	} else if sarerr.Is(err, sarerr.UnsupportedFormat) || sarerr.Is(err, sarerr.DecodeError) {
		status = http.StatusBadRequest
	}
	return Response{Status: status, ContentType: "text/plain", Body: []byte(err.Error())}
}

// parseTilePath parses "<product-url>/<hdf5-path>/<stride>/<row>/<col>"
// segments; a '/' inside the product URL or HDF5 path is written as %2F,
// which unescapeSegment restores.
func parseTilePath(rest string) (productURL, hdf5Path string, stride, row, col int, err error) {
	parts := strings.Split(rest, "/")
	if len(parts) != 5 {
		err = sarerr.New(sarerr.DecodeError, "tile path must have 5 segments")
		return
	}
	productURL = unescapeSegment(parts[0])
	hdf5Path = unescapeSegment(parts[1])
	stride, e1 := strconv.Atoi(parts[2])
	row, e2 := strconv.Atoi(parts[3])
	col, e3 := strconv.Atoi(parts[4])
	if e1 != nil || e2 != nil || e3 != nil {
		err = sarerr.New(sarerr.DecodeError, "tile path stride/row/col must be integers")
		return
	}
	return
}

func unescapeSegment(s string) string {
	return strings.ReplaceAll(s, "%2F", "/")
}
