package crmapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// PropertyDefinition describes one deal property as reported by the
// CRM's metadata endpoint.
type PropertyDefinition struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Type      string `json:"type"`
	FieldType string `json:"fieldType"`
}

type propertiesResponse struct {
	Results []PropertyDefinition `json:"results"`
}

// GetDealProperties returns the property metadata for the deals object
// type. Useful for discovering custom pipeline properties.
func (c *Client) GetDealProperties(ctx context.Context) ([]PropertyDefinition, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/crm/v3/properties/deals", nil)
	if err != nil {
		return nil, err
	}

	var resp propertiesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("crmapi: failed to parse properties response: %w", err)
	}
	return resp.Results, nil
}
