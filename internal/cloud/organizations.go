package cloud

import "context"

// Organization is a workspace the signed-in account can publish shares into.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *HTTPClient) ListOrganizations(ctx context.Context) ([]Organization, error) {
	var wrapper struct {
		Organizations []Organization `json:"organizations"`
	}
	if err := c.getJSON(ctx, "/api/desktop/organizations", &wrapper, orgListBodyLimit); err != nil {
		return nil, err
	}
	return wrapper.Organizations, nil
}
