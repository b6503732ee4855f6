package routes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/joneldiablo/adba/pkg/controller"
	"github.com/joneldiablo/adba/pkg/model"
)

// OpenAPIInfo contains API metadata for the OpenAPI specification
type OpenAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Contact     struct {
		Name  string `json:"name,omitempty"`
		Email string `json:"email,omitempty"`
		URL   string `json:"url,omitempty"`
	} `json:"contact,omitzero"`
}

// OpenAPIGenerator generates an OpenAPI document from a route table
type OpenAPIGenerator struct {
	table   Table
	baseURL string
	info    OpenAPIInfo
}

// NewOpenAPIGenerator creates a new OpenAPI generator
func NewOpenAPIGenerator(t Table, baseURL string, info OpenAPIInfo) *OpenAPIGenerator {
	return &OpenAPIGenerator{
		table:   t,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		info:    info,
	}
}

// ServeHTTP implements http.Handler to serve the OpenAPI specification
func (g *OpenAPIGenerator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	spec := g.GenerateSpecification()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(spec)
}

// GenerateSpecification creates a complete OpenAPI specification
func (g *OpenAPIGenerator) GenerateSpecification() map[string]any {
	paths := make(map[string]any)
	schemas := map[string]any{"Envelope": envelopeSchema()}

	for _, key := range g.table.Keys() {
		r := g.table[key]
		p := OpenAPIPath(r.Path)
		ops, ok := paths[p].(map[string]any)
		if !ok {
			ops = map[string]any{}
			paths[p] = ops
		}
		ops[strings.ToLower(r.Method)] = g.buildOperation(r)

		if !r.Custom && r.Model != nil {
			schemas[r.Model.Name] = r.Model.JSONSchema()
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":       g.info.Title,
			"description": g.info.Description,
			"version":     g.info.Version,
			"contact": map[string]any{
				"name":  g.info.Contact.Name,
				"email": g.info.Contact.Email,
				"url":   g.info.Contact.URL,
			},
		},
		"servers": []map[string]any{
			{
				"url":         g.baseURL,
				"description": "API Server",
			},
		},
		"paths":      paths,
		"components": map[string]any{"schemas": schemas},
	}
}

// OpenAPIPath turns :param segments into {param}.
func OpenAPIPath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if name, ok := strings.CutPrefix(p, ":"); ok {
			parts[i] = "{" + name + "}"
		}
	}
	return strings.Join(parts, "/")
}

func (g *OpenAPIGenerator) buildOperation(r Route) map[string]any {
	tag, _, _ := strings.Cut(strings.TrimPrefix(r.Path, "/"), "/")
	summary := fmt.Sprintf("%s %s", r.Action, r.Model.Table)
	if r.Custom {
		summary = fmt.Sprintf("%s.%s", r.Controller, r.Action)
	}

	op := map[string]any{
		"summary":     summary,
		"operationId": fmt.Sprintf("%s %s", r.Method, r.Path),
		"tags":        []string{tag},
		"responses": map[string]any{
			"200": map[string]any{
				"description": "Success",
				"content": map[string]any{
					"application/json": map[string]any{
						"schema": map[string]string{"$ref": "#/components/schemas/Envelope"},
					},
				},
			},
			"400": map[string]string{"description": "Bad Request"},
			"404": map[string]string{"description": "Not Found"},
			"500": map[string]string{"description": "Internal Server Error"},
		},
	}

	params := g.buildPathParameters(r)
	if r.Action == string(controller.List) && r.Method == http.MethodGet {
		params = append(params, g.buildQueryParameters()...)
	}
	if len(params) > 0 {
		op["parameters"] = params
	}

	if body := g.buildRequestBody(r); body != nil {
		op["requestBody"] = body
	}
	return op
}

// buildPathParameters generates the path parameters of a route
func (g *OpenAPIGenerator) buildPathParameters(r Route) []map[string]any {
	var params []map[string]any
	for _, seg := range strings.Split(r.Path, "/") {
		name, ok := strings.CutPrefix(seg, ":")
		if !ok {
			continue
		}
		prop, _ := r.Model.Property(name)
		params = append(params, map[string]any{
			"name":     name,
			"in":       "path",
			"required": true,
			"schema":   getParameterSchema(prop),
		})
	}
	return params
}

// buildQueryParameters generates the search parameters list actions accept
func (g *OpenAPIGenerator) buildQueryParameters() []map[string]any {
	param := func(name, typ, desc string) map[string]any {
		return map[string]any{
			"name":        name,
			"in":          "query",
			"description": desc,
			"schema":      map[string]string{"type": typ},
		}
	}
	return []map[string]any{
		param("q", "string", "Free-text search over the searchable columns"),
		param("fields", "string", "Comma separated columns to return"),
		param("limit", "string", "Page size, or false to disable paging"),
		param("offset", "integer", "Offset for pagination"),
		param("page", "integer", "Page number, from 0"),
		{
			"name":        "orderBy",
			"in":          "query",
			"style":       "deepObject",
			"description": "Column to direction, applied in order, eg orderBy[name]=desc",
			"schema":      map[string]any{"type": "object", "additionalProperties": map[string]string{"type": "string"}},
		},
		{
			"name":        "filters",
			"in":          "query",
			"style":       "deepObject",
			"description": "Column filters: a value, a list, or an operator object",
			"schema":      map[string]any{"type": "object"},
		},
	}
}

func (g *OpenAPIGenerator) buildRequestBody(r Route) map[string]any {
	var schema any
	switch controller.Action(r.Action) {
	case controller.Insert, controller.Update:
		if r.Custom || r.Model.Table == "" {
			return nil
		}
		ref := map[string]string{"$ref": "#/components/schemas/" + r.Model.Name}
		schema = map[string]any{"oneOf": []any{ref, map[string]any{"type": "array", "items": ref}}}
	case controller.List:
		if r.Method == http.MethodGet {
			return nil
		}
		schema = map[string]any{"type": "object"}
	default:
		return nil
	}
	return map[string]any{
		"content": map[string]any{
			"application/json": map[string]any{"schema": schema},
		},
	}
}

func envelopeSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"error":       map[string]string{"type": "boolean"},
			"success":     map[string]string{"type": "boolean"},
			"status":      map[string]string{"type": "integer"},
			"code":        map[string]string{"type": "integer"},
			"description": map[string]string{"type": "string"},
			"data":        map[string]any{},
			"total":       map[string]string{"type": "integer"},
			"limit":       map[string]any{},
			"offset":      map[string]string{"type": "integer"},
			"page":        map[string]string{"type": "integer"},
			"requestId":   map[string]string{"type": "string"},
		},
		"required": []string{"error", "success", "status", "code", "description"},
	}
}

// getParameterSchema gets schema for path parameters
func getParameterSchema(p model.Property) map[string]string {
	switch {
	case p.Type == model.TypeInteger:
		return map[string]string{"type": "integer"}
	case p.Type.Numeric():
		return map[string]string{"type": "number"}
	case p.Type == model.TypeBoolean:
		return map[string]string{"type": "boolean"}
	default:
		return map[string]string{"type": "string"}
	}
}
