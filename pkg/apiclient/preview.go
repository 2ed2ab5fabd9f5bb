package apiclient

// PreviewRequest is the body of the preview call.
type PreviewRequest struct {
	Mode             string            `json:"mode"`
	R                string            `json:"r,omitempty"`
	G                string            `json:"g,omitempty"`
	B                string            `json:"b,omitempty"`
	Channels         []string          `json:"channels,omitempty"`
	InputPixelBudget int64             `json:"input_pixel_budget,omitempty"`
	Stretch          map[string]string `json:"stretch,omitempty"`
}

// PreviewPlane describes one reprojected channel in a preview response.
type PreviewPlane struct {
	Label  string `json:"label"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// PreviewResponse is the server's answer to a preview call.
type PreviewResponse struct {
	Cache  string         `json:"cache"`
	Planes []PreviewPlane `json:"planes"`
	Bytes  int64          `json:"bytes"`
}

// Preview requests a reprojected preview for the given channels.
func (c *Client) Preview(req PreviewRequest) (*PreviewResponse, error) {
	var resp PreviewResponse
	if err := c.post("/api/v1/preview", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
