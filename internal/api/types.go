package api

type CompletionRequest struct {
	Model       string   `json:"model,omitempty"`
	Text        string   `json:"text"`
	Steps       *int     `json:"steps,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Greedy      *bool    `json:"greedy,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`
	Sanitize    *bool    `json:"sanitize,omitempty"`
}

type CompletionResponse struct {
	ID         string          `json:"id"`
	Object     string          `json:"object"`
	Created    int64           `json:"created"`
	Model      string          `json:"model"`
	Completion string          `json:"completion"`
	Window     string          `json:"window"`
	Usage      CompletionUsage `json:"usage"`
}

type CompletionUsage struct {
	Steps      int     `json:"steps"`
	DurationMS float64 `json:"duration_ms"`
	CPS        float64 `json:"chars_per_second"`
}

type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
