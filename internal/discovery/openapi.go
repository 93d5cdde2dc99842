package discovery

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// ParseOpenAPI parses raw (JSON or YAML) OpenAPI/Swagger text, resolves
// internal $refs, and normalizes into OpenAPIProfile. YAML input is
// converted to JSON first (kin-openapi's loader is JSON-native); this is
// the module's one direct use of gopkg.in/yaml.v3 for OpenAPI documents.
func ParseOpenAPI(ctx context.Context, sourceURL string, raw []byte) (*OpenAPIProfile, error) {
	jsonBytes, err := toJSON(raw)
	if err != nil {
		return nil, err
	}

	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	doc, err := loader.LoadFromData(jsonBytes)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(ctx); err != nil {
		// Non-fatal: many real-world documents fail strict validation but
		// still yield a usable endpoint list.
		_ = err
	}

	servers := normalizeServers(doc)

	profile := &OpenAPIProfile{SourceURL: sourceURL, Servers: servers}

	if doc.Paths == nil {
		return profile, nil
	}
	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	for _, path := range keys {
		item := paths[path]
		for method, op := range item.Operations() {
			ep := Endpoint{Method: method, Path: path}
			for _, p := range op.Parameters {
				if p.Value == nil {
					continue
				}
				ep.Parameters = append(ep.Parameters, Parameter{
					Name:     p.Value.Name,
					In:       p.Value.In,
					Required: p.Value.Required,
				})
			}
			ep.RequestBody = op.RequestBody != nil
			if op.Responses != nil {
				for code := range op.Responses.Map() {
					ep.Responses = append(ep.Responses, code)
				}
				sort.Strings(ep.Responses)
			}
			ep.Public = isPublic(op.Security, doc.Security)
			for _, sec := range effectiveSecurity(op.Security, doc.Security) {
				for name := range sec {
					ep.Security = append(ep.Security, name)
				}
			}
			sort.Strings(ep.Security)

			if ep.Public {
				profile.PublicEndpoints = append(profile.PublicEndpoints, ep)
			} else {
				profile.ProtectedEndpoints = append(profile.ProtectedEndpoints, ep)
			}
		}
	}
	return profile, nil
}

// normalizeServers returns the URLs of the document's native OpenAPI 3
// `servers`. Swagger 2.0 schemes+host+basePath are not converted into
// servers, so a Swagger 2.0 document yields no server URLs.
func normalizeServers(doc *openapi3.T) []string {
	var out []string
	for _, s := range doc.Servers {
		out = append(out, s.URL)
	}
	return out
}

func effectiveSecurity(opSec *openapi3.SecurityRequirements, docSec openapi3.SecurityRequirements) openapi3.SecurityRequirements {
	if opSec != nil {
		return *opSec
	}
	return docSec
}

func isPublic(opSec *openapi3.SecurityRequirements, docSec openapi3.SecurityRequirements) bool {
	effective := effectiveSecurity(opSec, docSec)
	return len(effective) == 0
}

// toJSON converts YAML input to JSON; JSON input passes through unchanged
// (detected by a leading `{` or `[`).
func toJSON(raw []byte) ([]byte, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return raw, nil
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
