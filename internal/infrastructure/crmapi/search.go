package crmapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/crmdash/backend/internal/domain/crm"
)

// maxSearchPages caps pagination drains. The CRM search API refuses to
// page past 10k results anyway, so this bounds runaway cursors, not
// legitimate data.
const maxSearchPages = 100

// batchReadLimit is the CRM's cap on inputs per batch-read call.
const batchReadLimit = 100

// SearchObjects runs a search and drains every page of results. It
// returns the full record list and the record count after dedupe; the
// server-reported total only feeds the partial-drain warning.
//
// A nil FilterGroups slice is normalized to the empty match-all group,
// a zero Limit to the configured page size, and an empty Sorts list to
// ascending creation date so pagination is stable. Records are deduped
// by ID: the CRM can repeat records across page boundaries when data
// changes mid-drain.
func (c *Client) SearchObjects(ctx context.Context, objectType string, req SearchRequest) ([]crm.Record, int, error) {
	if req.FilterGroups == nil {
		req.FilterGroups = []FilterGroup{}
	}
	if req.Limit <= 0 || req.Limit > maxPageSize {
		req.Limit = c.config.PageSize
	}
	if len(req.Sorts) == 0 {
		req.Sorts = []Sort{{PropertyName: crm.PropCreateDate, Direction: SortAscending}}
	}

	path := "/crm/v3/objects/" + url.PathEscape(objectType) + "/search"

	var (
		records     []crm.Record
		serverTotal int
		seen        = make(map[string]struct{})
	)

	for page := 0; page < maxSearchPages; page++ {
		body, err := c.doRequest(ctx, http.MethodPost, path, req)
		if err != nil {
			return nil, 0, err
		}

		var resp searchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, 0, fmt.Errorf("crmapi: failed to parse search response: %w", err)
		}

		if page == 0 {
			serverTotal = resp.Total
		}

		for _, record := range toRecords(resp.Results) {
			if _, dup := seen[record.ID]; dup {
				continue
			}
			seen[record.ID] = struct{}{}
			records = append(records, record)
		}

		if resp.Paging == nil || resp.Paging.Next == nil || resp.Paging.Next.After == "" {
			return records, len(records), nil
		}
		req.After = resp.Paging.Next.After
	}

	c.logger.Warn("search pagination hit page cap, returning partial results",
		zap.String("object_type", objectType),
		zap.Int("pages", maxSearchPages),
		zap.Int("records", len(records)),
		zap.Int("server_total", serverTotal))
	return records, len(records), nil
}

// ListObjects drains the plain list endpoint for an object type. Unlike
// search it carries no filters and no total count.
func (c *Client) ListObjects(ctx context.Context, objectType string, properties []string) ([]crm.Record, error) {
	basePath := "/crm/v3/objects/" + url.PathEscape(objectType)

	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.config.PageSize))
	for _, p := range properties {
		query.Add("properties", p)
	}

	var (
		records []crm.Record
		seen    = make(map[string]struct{})
		after   string
	)

	for page := 0; page < maxSearchPages; page++ {
		if after != "" {
			query.Set("after", after)
		}

		body, err := c.doRequest(ctx, http.MethodGet, basePath+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}

		var resp searchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("crmapi: failed to parse list response: %w", err)
		}

		for _, record := range toRecords(resp.Results) {
			if _, dup := seen[record.ID]; dup {
				continue
			}
			seen[record.ID] = struct{}{}
			records = append(records, record)
		}

		if resp.Paging == nil || resp.Paging.Next == nil || resp.Paging.Next.After == "" {
			return records, nil
		}
		after = resp.Paging.Next.After
	}

	c.logger.Warn("list pagination hit page cap, returning partial results",
		zap.String("object_type", objectType),
		zap.Int("records", len(records)))
	return records, nil
}

// GetAssociations returns the IDs of toType objects associated with one
// fromType object.
func (c *Client) GetAssociations(ctx context.Context, fromType, objectID, toType string) ([]string, error) {
	path := fmt.Sprintf("/crm/v3/objects/%s/%s/associations/%s",
		url.PathEscape(fromType), url.PathEscape(objectID), url.PathEscape(toType))

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp associationsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("crmapi: failed to parse associations response: %w", err)
	}

	ids := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// BatchReadObjects reads records by ID, chunking requests at the CRM's
// batch limit. Unknown IDs are silently absent from the result.
func (c *Client) BatchReadObjects(ctx context.Context, objectType string, ids, properties []string) ([]crm.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	path := "/crm/v3/objects/" + url.PathEscape(objectType) + "/batch/read"

	var records []crm.Record
	for start := 0; start < len(ids); start += batchReadLimit {
		end := min(start+batchReadLimit, len(ids))

		req := batchReadRequest{
			Inputs:     make([]batchReadInput, 0, end-start),
			Properties: properties,
		}
		for _, id := range ids[start:end] {
			req.Inputs = append(req.Inputs, batchReadInput{ID: id})
		}

		body, err := c.doRequest(ctx, http.MethodPost, path, req)
		if err != nil {
			return nil, err
		}

		var resp batchReadResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("crmapi: failed to parse batch read response: %w", err)
		}

		records = append(records, toRecords(resp.Results)...)
	}

	return records, nil
}
