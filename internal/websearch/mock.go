// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package websearch

import "context"

// MockSearcher returns canned results for development and tests.
type MockSearcher struct {
	Results []Result
}

func (m *MockSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit > 0 && limit < len(m.Results) {
		return m.Results[:limit], nil
	}
	return m.Results, nil
}
