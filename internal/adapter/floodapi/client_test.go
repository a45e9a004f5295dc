package floodapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevenJnando/flood-notifications-producer/internal/domain"
)

const areaDocument = `{
	"type": "FeatureCollection",
	"features": [{
		"type": "Feature",
		"properties": {"FWS_TACODE": "064FWF4660"},
		"geometry": {
			"type": "Polygon",
			"coordinates": [[[-1.6, 54.9], [-1.5, 54.9], [-1.5, 55.0], [-1.6, 55.0], [-1.6, 54.9]]]
		}
	}]
}`

func testClient() *Client {
	return NewClient(5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func floodFor(polygonURL string) *domain.FloodWarning {
	return &domain.FloodWarning{
		FloodAreaID: "064FWF4660",
		FloodArea:   domain.FloodArea{Polygon: polygonURL},
	}
}

func TestFloodGeometry(t *testing.T) {
	var gotAccept string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/geo+json")
		io.WriteString(w, areaDocument) //nolint:errcheck
	}))
	defer upstream.Close()

	fc, err := testClient().FloodGeometry(context.Background(), floodFor(upstream.URL))

	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "application/geo+json", gotAccept)
	assert.Equal(t, "064FWF4660", fc.Features[0].Properties.MustString("FWS_TACODE", ""))
}

func TestFloodGeometry_MissingPolygonURL(t *testing.T) {
	_, err := testClient().FloodGeometry(context.Background(), &domain.FloodWarning{FloodAreaID: "064FWF4660"})

	assert.ErrorIs(t, err, domain.ErrMissingFloodArea)
}

func TestFloodGeometry_UpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer upstream.Close()

	_, err := testClient().FloodGeometry(context.Background(), floodFor(upstream.URL))

	var fetchErr *domain.UpstreamFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Equal(t, upstream.URL, fetchErr.URL)
}

func TestFloodGeometry_UndecodableBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"type":"FeatureCollection","features":"nope"}`) //nolint:errcheck
	}))
	defer upstream.Close()

	_, err := testClient().FloodGeometry(context.Background(), floodFor(upstream.URL))

	var decodeErr *domain.GeometryDecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "064FWF4660", decodeErr.FloodAreaID)
}

func TestFloodGeometry_ConnectionRefused(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	upstream.Close() // nothing listening any more

	_, err := testClient().FloodGeometry(context.Background(), floodFor(upstream.URL))

	var fetchErr *domain.UpstreamFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, fetchErr.StatusCode)
}

func TestFloodGeometry_ContextCancelled(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer upstream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := testClient().FloodGeometry(ctx, floodFor(upstream.URL))

	require.Error(t, err)
}
