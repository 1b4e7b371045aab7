package domain

// ExportFilters mirrors the list filters accepted by POST /api/export/csv.
type ExportFilters struct {
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate"`
	MinAmount *float64 `json:"minAmount"`
	MaxAmount *float64 `json:"maxAmount"`
	Type      string   `json:"type"`
	Category  string   `json:"category"`
	Status    string   `json:"status"`
	Search    string   `json:"search"`
}

// ExportRequest is the body for POST /api/export/csv.
type ExportRequest struct {
	Fields  []string       `json:"fields"`
	Filters *ExportFilters `json:"filters"`
}
