package crmapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Page is the paginated list envelope used by the CRM API
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// decodeList accepts either a bare JSON array or a Page envelope. The
// returned next link is empty when there are no more pages.
func decodeList[T any](data []byte) ([]T, string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty response body")
	}

	switch data[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, "", err
		}
		return items, "", nil
	case '{':
		var page Page[T]
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, "", err
		}
		next := ""
		if page.Next != nil {
			next = *page.Next
		}
		return page.Results, next, nil
	}
	return nil, "", fmt.Errorf("unexpected list payload starting with %q", data[0])
}
