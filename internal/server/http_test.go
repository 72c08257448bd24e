package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/sarstream/sarstream/internal/sarerr"
	"github.com/sarstream/sarstream/internal/session"
	"github.com/stretchr/testify/assert"
)

func newTestServer() *Server {
	sess := session.New(session.DefaultConfig(), nil)
	return New(sess, nil)
}

func TestGetRoutesUnknownPathToNotFound(t *testing.T) {
	s := newTestServer()
	resp := s.Get(context.Background(), "/unknown/thing", nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestGetTileOnMissingFileReturnsServerError(t *testing.T) {
	s := newTestServer()
	// the product path does not resolve to a file that exists, so
	// OpenProduct fails with an IOError (stat failure), not NotFound.
	resp := s.Get(context.Background(), "/tile/does-not-exist%2Ffile.h5/path/1/0/0", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
}

func TestGetTileRejectsMalformedPath(t *testing.T) {
	s := newTestServer()
	resp := s.Get(context.Background(), "/tile/too/few/segments", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestErrorResponseMapsSarerrCodesToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, errorResponse(sarerr.New(sarerr.NotFound, "x")).Status)
	assert.Equal(t, 499, errorResponse(sarerr.New(sarerr.Cancelled, "x")).Status)
	assert.Equal(t, http.StatusBadRequest, errorResponse(sarerr.New(sarerr.UnsupportedFormat, "x")).Status)
	assert.Equal(t, http.StatusBadRequest, errorResponse(sarerr.New(sarerr.DecodeError, "x")).Status)
	assert.Equal(t, http.StatusInternalServerError, errorResponse(sarerr.New(sarerr.IOError, "x")).Status)
}

func TestUnescapeSegmentRestoresSlashes(t *testing.T) {
	assert.Equal(t, "science/LSAR/GCOV", unescapeSegment("science%2FLSAR%2FGCOV"))
}

func TestParseTilePathRequiresFiveSegments(t *testing.T) {
	_, _, _, _, _, err := parseTilePath("a/b/1/2")
	assert.Error(t, err)

	url, path, stride, row, col, err := parseTilePath("a/b%2Fc/2/3/4")
	assert.NoError(t, err)
	assert.Equal(t, "a", url)
	assert.Equal(t, "b/c", path)
	assert.Equal(t, 2, stride)
	assert.Equal(t, 3, row)
	assert.Equal(t, 4, col)
}
