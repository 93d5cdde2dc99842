package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const introspectionQuery = `query IntrospectionQuery { __schema { types { name kind fields { name type { name kind ofType { name kind } } } } } }`

type introspectionResponse struct {
	Data struct {
		Schema struct {
			Types []struct {
				Name   string `json:"name"`
				Kind   string `json:"kind"`
				Fields []struct {
					Name string `json:"name"`
					Type struct {
						Name   string `json:"name"`
						Kind   string `json:"kind"`
						OfType *struct {
							Name string `json:"name"`
							Kind string `json:"kind"`
						} `json:"ofType"`
					} `json:"type"`
				} `json:"fields"`
			} `json:"types"`
		} `json:"__schema"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// IntrospectGraphQL POSTs the standard introspection query; on 400/403 it
// retries as a GET with the query in the querystring. Explicit
// "introspection disabled" errors cause a clean skip rather than a failure.
func IntrospectGraphQL(ctx context.Context, client *http.Client, endpoint string) (*GraphQLProfile, error) {
	body, status, err := postGraphQL(ctx, client, endpoint, introspectionQuery)
	if err != nil {
		return nil, err
	}
	if status == 400 || status == 403 {
		body, status, err = getGraphQL(ctx, client, endpoint, introspectionQuery)
		if err != nil {
			return nil, err
		}
	}

	var resp introspectionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("discovery: parsing introspection response: %w", err)
	}
	for _, e := range resp.Errors {
		if strings.Contains(strings.ToLower(e.Message), "introspection") && strings.Contains(strings.ToLower(e.Message), "disab") {
			return &GraphQLProfile{Endpoint: endpoint, IntrospectionOff: true}, nil
		}
	}

	profile := &GraphQLProfile{Endpoint: endpoint}
	fieldsByType := make(map[string][]GraphQLField)
	for _, t := range resp.Data.Schema.Types {
		if strings.HasPrefix(t.Name, "__") {
			continue
		}
		profile.Types = append(profile.Types, t.Name)
		var fields []GraphQLField
		for _, f := range t.Fields {
			fields = append(fields, GraphQLField{Name: f.Name, Type: f.Type.Name})
		}
		fieldsByType[t.Name] = fields
	}

	profile.SampleQueries = generateSampleQueries(fieldsByType, 5, 3, 10)
	return profile, nil
}

func postGraphQL(ctx context.Context, client *http.Client, endpoint, query string) ([]byte, int, error) {
	payload, _ := json.Marshal(map[string]string{"query": query})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return b, resp.StatusCode, err
}

func getGraphQL(ctx context.Context, client *http.Client, endpoint, query string) ([]byte, int, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, 0, err
	}
	q := u.Query()
	q.Set("query", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return b, resp.StatusCode, err
}

// generateSampleQueries builds up to maxQueries shallow, cycle-safe sample
// documents (depth<=maxDepth, <=maxFieldsPerType fields/type).
func generateSampleQueries(fieldsByType map[string][]GraphQLField, maxQueries, maxDepth, maxFieldsPerType int) []string {
	var queries []string
	for typeName, fields := range fieldsByType {
		if len(queries) >= maxQueries {
			break
		}
		if len(fields) == 0 {
			continue
		}
		visited := map[string]bool{typeName: true}
		body := buildSelectionSet(fields, fieldsByType, visited, 1, maxDepth, maxFieldsPerType)
		if body == "" {
			continue
		}
		queries = append(queries, fmt.Sprintf("query { %s { %s } }", lowerFirst(typeName), body))
	}
	return queries
}

func buildSelectionSet(fields []GraphQLField, fieldsByType map[string][]GraphQLField, visited map[string]bool, depth, maxDepth, maxFields int) string {
	if depth > maxDepth {
		return ""
	}
	var parts []string
	for i, f := range fields {
		if i >= maxFields {
			break
		}
		if sub, ok := fieldsByType[f.Type]; ok && !visited[f.Type] && depth < maxDepth {
			visited[f.Type] = true
			inner := buildSelectionSet(sub, fieldsByType, visited, depth+1, maxDepth, maxFields)
			delete(visited, f.Type)
			if inner != "" {
				parts = append(parts, fmt.Sprintf("%s { %s }", f.Name, inner))
				continue
			}
		}
		parts = append(parts, f.Name)
	}
	return strings.Join(parts, " ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
