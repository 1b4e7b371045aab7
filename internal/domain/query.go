package domain

// QuerySpec is the typed, boundary-validated form of the list and export
// filters. Empty strings and nil pointers mean "not filtered".
type QuerySpec struct {
	Owner string

	StartDate string
	EndDate   string
	MinAmount *float64
	MaxAmount *float64
	Type      string
	Category  string
	Status    string
	Search    string

	Page      int
	Limit     int
	SortField string
	SortOrder string
}

// PageInfo is the pagination metadata returned with every list.
type PageInfo struct {
	Total       int  `json:"total"`
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Pages       int  `json:"pages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// PaginatedTransactions is the body of GET /api/transactions.
type PaginatedTransactions struct {
	Data       []Transaction `json:"data"`
	Pagination PageInfo      `json:"pagination"`
}
