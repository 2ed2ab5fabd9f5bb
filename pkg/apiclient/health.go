package apiclient

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Health checks the liveness endpoint.
func (c *Client) Health() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get("/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ready checks the readiness endpoint.
func (c *Client) Ready() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get("/health/ready", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
