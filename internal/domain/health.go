package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
	Error       string `json:"error,omitempty"`
}

// ServiceMetrics is the counter summary embedded in AdminStats.
type ServiceMetrics struct {
	TotalRequests int64   `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	StoreErrors   int64   `json:"storeErrors"`
	CacheHitRate  float64 `json:"cacheHitRate"`
	ExportsServed int64   `json:"exportsServed"`
	RowsExported  int64   `json:"rowsExported"`
	AuthFailures  int64   `json:"authFailures"`
	CircuitState  string  `json:"circuitState"`
	Period        string  `json:"period"`
}

// AdminStats is returned by GET /api/admin/stats.
type AdminStats struct {
	Store   ServiceHealth   `json:"store"`
	Metrics *ServiceMetrics `json:"metrics"`
}

// MessageResponse wraps a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}
