// Package httpcatalog is a JSON-over-HTTP implementation of the
// catalog.Catalog port: the remote asset catalog the resolver and
// pipeline read from. The source system's catalog lives behind a
// private RPC layer (spec §9); this adapter is the engine's own
// client for a catalog exposed as a conventional REST API, the shape
// the spec's "External Interfaces" section leaves to the embedding
// deployment. Grounded on the teacher's postgres.Store/neo4j.Store
// "thin struct wrapping a driver" shape, adapted to an http.Client.
package httpcatalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vaultbridge/importengine/internal/catalog"
	"github.com/vaultbridge/importengine/internal/engineerr"
	"github.com/vaultbridge/importengine/internal/model"
)

// Client implements catalog.Catalog against a REST catalog service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New constructs a Client. baseURL is the catalog service root (no
// trailing slash expected); token, if non-empty, is sent as a bearer
// token on every request.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return engineerr.Servicef(err, "building catalog request %s", path)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return engineerr.Servicef(err, "calling catalog %s", path)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return engineerr.NotFoundf("catalog resource %s", path)
	case http.StatusForbidden:
		return engineerr.Forbiddenf("catalog resource %s", path)
	default:
		return engineerr.Servicef(fmt.Errorf("status %s", resp.Status), "catalog request %s", path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return engineerr.Servicef(err, "decoding catalog response %s", path)
	}
	return nil
}

func assetPath(id model.AssetIdentifier) string {
	return fmt.Sprintf("/orgs/%s/projects/%s/assets/%s/versions/%s", id.OrgID, id.ProjectID, id.AssetID, id.Version)
}

// GetAsset fetches one exact asset version.
func (c *Client) GetAsset(ctx context.Context, id model.AssetIdentifier) (model.AssetData, error) {
	var out model.AssetData
	err := c.do(ctx, http.MethodGet, assetPath(id), nil, &out)
	return out, err
}

// GetLatestAssetVersion fetches the latest published version of a
// tracked asset.
func (c *Client) GetLatestAssetVersion(ctx context.Context, id model.TrackedID) (model.AssetData, error) {
	path := fmt.Sprintf("/orgs/%s/projects/%s/assets/%s/latest", id.OrgID, id.ProjectID, id.AssetID)
	var out model.AssetData
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// GetLatestAssetVersionLite fetches only the latest version string,
// cheaper than a full GetLatestAssetVersion round trip.
func (c *Client) GetLatestAssetVersionLite(ctx context.Context, id model.TrackedID) (string, error) {
	path := fmt.Sprintf("/orgs/%s/projects/%s/assets/%s/latest-version", id.OrgID, id.ProjectID, id.AssetID)
	var out struct {
		Version string `json:"version"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Version, err
}

// ListVersionsDescending streams every version of a tracked asset,
// newest first.
func (c *Client) ListVersionsDescending(ctx context.Context, id model.TrackedID) <-chan catalog.Result[model.AssetData] {
	out := make(chan catalog.Result[model.AssetData])
	go func() {
		defer close(out)
		path := fmt.Sprintf("/orgs/%s/projects/%s/assets/%s/versions", id.OrgID, id.ProjectID, id.AssetID)
		var versions []model.AssetData
		if err := c.do(ctx, http.MethodGet, path, nil, &versions); err != nil {
			out <- catalog.Result[model.AssetData]{Err: err}
			return
		}
		for _, v := range versions {
			select {
			case out <- catalog.Result[model.AssetData]{Value: v}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Search streams paginated search results for a project set.
func (c *Client) Search(ctx context.Context, orgID string, projectIDs []string, filter catalog.SearchFilter, sortField string, order catalog.SortOrder, offset, pageSize int) <-chan catalog.Result[model.AssetData] {
	out := make(chan catalog.Result[model.AssetData])
	go func() {
		defer close(out)
		q := url.Values{}
		q.Set("project_ids", strings.Join(projectIDs, ","))
		q.Set("asset_ids", strings.Join(filter.AssetIDs, ","))
		q.Set("sort", sortField)
		q.Set("order", string(order))
		q.Set("offset", strconv.Itoa(offset))
		q.Set("page_size", strconv.Itoa(pageSize))

		var page []model.AssetData
		if err := c.do(ctx, http.MethodGet, "/orgs/"+orgID+"/assets/search", q, &page); err != nil {
			out <- catalog.Result[model.AssetData]{Err: err}
			return
		}
		for _, a := range page {
			select {
			case out <- catalog.Result[model.AssetData]{Value: a}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// ResolveDatasets hydrates asset.Datasets in place when the summary
// form returned by Search/ListVersionsDescending omitted them.
func (c *Client) ResolveDatasets(ctx context.Context, asset *model.AssetData) error {
	if len(asset.Datasets) > 0 {
		return nil
	}
	var full model.AssetData
	if err := c.do(ctx, http.MethodGet, assetPath(asset.Identifier), nil, &full); err != nil {
		return err
	}
	asset.Datasets = full.Datasets
	return nil
}

// RefreshDependencies hydrates asset.Dependencies in place.
func (c *Client) RefreshDependencies(ctx context.Context, asset *model.AssetData) error {
	path := assetPath(asset.Identifier) + "/dependencies"
	var deps []model.AssetIdentifier
	if err := c.do(ctx, http.MethodGet, path, nil, &deps); err != nil {
		return err
	}
	asset.Dependencies = deps
	return nil
}

// GatherImportStatuses fetches up-to-date/out-of-date status for a
// batch of asset versions in one round trip.
func (c *Client) GatherImportStatuses(ctx context.Context, assets []model.AssetIdentifier) (map[model.TrackedID]model.ImportStatus, error) {
	ids := make([]string, 0, len(assets))
	for _, a := range assets {
		ids = append(ids, a.String())
	}
	q := url.Values{}
	q.Set("assets", strings.Join(ids, ","))

	var resp []struct {
		Tracked model.TrackedID    `json:"tracked"`
		Status  model.ImportStatus `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/assets/import-statuses", q, &resp); err != nil {
		return nil, err
	}
	out := make(map[model.TrackedID]model.ImportStatus, len(resp))
	for _, r := range resp {
		out[r.Tracked] = r.Status
	}
	return out, nil
}

// ListFiles streams one dataset's file listing, paginated.
func (c *Client) ListFiles(ctx context.Context, id model.AssetIdentifier, datasetID string, offset, limit int) <-chan catalog.Result[model.AssetDataFile] {
	out := make(chan catalog.Result[model.AssetDataFile])
	go func() {
		defer close(out)
		q := url.Values{}
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(limit))
		path := assetPath(id) + "/datasets/" + datasetID + "/files"

		var files []model.AssetDataFile
		if err := c.do(ctx, http.MethodGet, path, q, &files); err != nil {
			out <- catalog.Result[model.AssetDataFile]{Err: err}
			return
		}
		for _, f := range files {
			select {
			case out <- catalog.Result[model.AssetDataFile]{Value: f}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// GetDatasetDownloadURLs fetches signed download URLs keyed by file
// path for one dataset.
func (c *Client) GetDatasetDownloadURLs(ctx context.Context, id model.AssetIdentifier, datasetID string) (map[string]string, error) {
	path := assetPath(id) + "/datasets/" + datasetID + "/download-urls"
	var out map[string]string
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// GetPreviewURL fetches a preview image URL sized to maxDim, if the
// asset has one.
func (c *Client) GetPreviewURL(ctx context.Context, asset model.AssetData, maxDim int) (string, bool, error) {
	if asset.PreviewFile == "" {
		return "", false, nil
	}
	q := url.Values{}
	q.Set("max_dim", strconv.Itoa(maxDim))
	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodGet, assetPath(asset.Identifier)+"/preview", q, &out); err != nil {
		if kind, ok := engineerr.KindOf(err); ok && kind == engineerr.KindNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return out.URL, out.URL != "", nil
}
