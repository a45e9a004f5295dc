// Package floodapi fetches flood area polygon documents from the upstream
// flood-monitoring API.
package floodapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/DevenJnando/flood-notifications-producer/internal/domain"
)

// Client resolves a flood warning's polygon URL to its GeoJSON document.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a polygon fetch client.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FloodGeometry fetches and decodes the flood area document referenced by the
// warning's polygon URL. A missing reference, a non-200 response or an
// undecodable body is fatal to this one flood.
func (c *Client) FloodGeometry(ctx context.Context, flood *domain.FloodWarning) (*geojson.FeatureCollection, error) {
	polygonURL := flood.FloodArea.Polygon
	if polygonURL == "" {
		return nil, domain.ErrMissingFloodArea
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, polygonURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.UpstreamFetchError{URL: polygonURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil, &domain.UpstreamFetchError{URL: polygonURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.UpstreamFetchError{URL: polygonURL, Err: err}
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, &domain.GeometryDecodeError{FloodAreaID: flood.FloodAreaID, Err: err}
	}

	c.logger.Debug("fetched flood area document",
		"flood_area_id", flood.FloodAreaID, "features", len(fc.Features))
	return fc, nil
}
