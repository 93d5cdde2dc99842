package discovery

import (
	"context"
	"testing"
)

const minimalOpenAPI = `{
  "openapi": "3.0.0",
  "info": {"title": "Demo", "version": "1.0"},
  "servers": [{"url": "https://api.example.com"}],
  "paths": {
    "/users": {
      "get": {
        "parameters": [{"name": "limit", "in": "query", "required": false}],
        "responses": {"200": {"description": "ok"}}
      },
      "post": {
        "security": [{"bearerAuth": []}],
        "requestBody": {"content": {"application/json": {"schema": {"type": "object"}}}},
        "responses": {"201": {"description": "created"}}
      }
    }
  }
}`

func TestParseOpenAPISplitsPublicAndProtected(t *testing.T) {
	profile, err := ParseOpenAPI(context.Background(), "https://api.example.com/openapi.json", []byte(minimalOpenAPI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profile.Servers) != 1 || profile.Servers[0] != "https://api.example.com" {
		t.Fatalf("unexpected servers: %+v", profile.Servers)
	}
	if len(profile.PublicEndpoints) != 1 || profile.PublicEndpoints[0].Method != "GET" {
		t.Fatalf("expected one public GET endpoint, got %+v", profile.PublicEndpoints)
	}
	if len(profile.ProtectedEndpoints) != 1 || !profile.ProtectedEndpoints[0].RequestBody {
		t.Fatalf("expected one protected endpoint with a request body, got %+v", profile.ProtectedEndpoints)
	}
}

const minimalOpenAPIYAML = `
openapi: 3.0.0
info:
  title: Demo
  version: "1.0"
paths:
  /ping:
    get:
      responses:
        "200":
          description: ok
`

func TestParseOpenAPIAcceptsYAML(t *testing.T) {
	profile, err := ParseOpenAPI(context.Background(), "https://api.example.com/openapi.yaml", []byte(minimalOpenAPIYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profile.PublicEndpoints) != 1 || profile.PublicEndpoints[0].Path != "/ping" {
		t.Fatalf("expected /ping public endpoint, got %+v", profile.PublicEndpoints)
	}
}
