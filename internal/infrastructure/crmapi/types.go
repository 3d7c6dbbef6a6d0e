package crmapi

// Filter operators accepted by the CRM search endpoint.
const (
	OperatorEq             = "EQ"
	OperatorNeq            = "NEQ"
	OperatorGte            = "GTE"
	OperatorLte            = "LTE"
	OperatorBetween        = "BETWEEN"
	OperatorIn             = "IN"
	OperatorHasProperty    = "HAS_PROPERTY"
	OperatorNotHasProperty = "NOT_HAS_PROPERTY"
)

// Sort directions.
const (
	SortAscending  = "ASCENDING"
	SortDescending = "DESCENDING"
)

// Filter is a single property condition. Value covers the unary
// operators; HighValue pairs with Value for BETWEEN; Values serves IN.
type Filter struct {
	PropertyName string   `json:"propertyName"`
	Operator     string   `json:"operator"`
	Value        string   `json:"value,omitempty"`
	HighValue    string   `json:"highValue,omitempty"`
	Values       []string `json:"values,omitempty"`
}

// FilterGroup is a conjunction of filters. Groups are OR-ed together by
// the CRM.
type FilterGroup struct {
	Filters []Filter `json:"filters"`
}

// Sort orders search results by one property.
type Sort struct {
	PropertyName string `json:"propertyName"`
	Direction    string `json:"direction"`
}

// SearchRequest is the body of a CRM search call. An empty FilterGroups
// slice is the match-all request; it is always serialized, never omitted,
// because the CRM treats a missing key differently from an empty array.
type SearchRequest struct {
	FilterGroups []FilterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties,omitempty"`
	Sorts        []Sort        `json:"sorts,omitempty"`
	Limit        int           `json:"limit,omitempty"`
	After        string        `json:"after,omitempty"`
}

// recordPayload is one record on the wire. Property values can be null;
// those are dropped during conversion.
type recordPayload struct {
	ID         string             `json:"id"`
	Properties map[string]*string `json:"properties"`
}

type pagingNext struct {
	After string `json:"after"`
}

type paging struct {
	Next *pagingNext `json:"next"`
}

// searchResponse is the body of a search or list response. Total is only
// populated by search.
type searchResponse struct {
	Total   int             `json:"total"`
	Results []recordPayload `json:"results"`
	Paging  *paging         `json:"paging"`
}

// associationResult is one associated object reference.
type associationResult struct {
	ID string `json:"id"`
}

type associationsResponse struct {
	Results []associationResult `json:"results"`
}

// batchReadInput identifies one record in a batch read request.
type batchReadInput struct {
	ID string `json:"id"`
}

type batchReadRequest struct {
	Inputs     []batchReadInput `json:"inputs"`
	Properties []string         `json:"properties,omitempty"`
}

type batchReadResponse struct {
	Results []recordPayload `json:"results"`
}
