package api

// PredictRequest carries either a raw record or a parsed feature vector.
type PredictRequest struct {
	Record   *string   `json:"record,omitempty"`
	Features []float32 `json:"features,omitempty"`
}

type PredictResponse struct {
	ID        string    `json:"id"`
	Object    string    `json:"object"`
	Created   int64     `json:"created"`
	Model     string    `json:"model"`
	Features  []float32 `json:"features"`
	X         float32   `json:"x"`
	Y         float32   `json:"y"`
	LatencyUs uint64    `json:"latency_us"`
	LatencyMs float64   `json:"latency_ms"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	State   string `json:"state"`
	Version string `json:"version"`
}
