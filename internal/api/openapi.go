// Package api/openapi serves the OpenAPI 3.0 document of the local API and
// a Swagger UI page for it. The document is hand-built and must be kept in
// step with the routes in server.go.
package api

import (
	"encoding/json"
	"net/http"
)

// handleOpenAPI serves the OpenAPI documentation interface
func (s *APIServer) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r))
		return
	}

	// Simple HTML documentation page
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Pocket Docs API Documentation</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@4.15.5/swagger-ui.css" />
    <style>
        html { box-sizing: border-box; overflow: -moz-scrollbars-vertical; overflow-y: scroll; }
        *, *:before, *:after { box-sizing: inherit; }
        body { margin:0; background: #fafafa; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4.15.5/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            const ui = SwaggerUIBundle({
                url: '/api/openapi.json',
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [
                    SwaggerUIBundle.presets.apis,
                    SwaggerUIBundle.presets.standalone
                ],
                plugins: [
                    SwaggerUIBundle.plugins.DownloadUrl
                ],
                layout: "StandaloneLayout"
            });
        };
    </script>
</body>
</html>`

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}

// handleOpenAPISpec serves the OpenAPI JSON specification
func (s *APIServer) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r))
		return
	}

	spec := getOpenAPISpec()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(spec)
}

type object = map[string]interface{}

func ref(name string) object {
	return object{"$ref": "#/components/schemas/" + name}
}

func idParam() object {
	return object{
		"name":        "id",
		"in":          "path",
		"required":    true,
		"description": "Template UUID",
		"schema":      object{"type": "string", "format": "uuid"},
	}
}

// jsonResponse documents a success envelope whose data is schema
func jsonResponse(description string, data object) object {
	return object{
		"description": description,
		"content": object{
			"application/json": object{
				"schema": object{
					"allOf": []object{
						ref("APIResponse"),
						{"type": "object", "properties": object{"data": data}},
					},
				},
			},
		},
	}
}

func errorResponse(description string) object {
	return object{
		"description": description,
		"content": object{
			"application/json": object{"schema": ref("ErrorResponse")},
		},
	}
}

func fillRequestBody() object {
	return object{
		"required": false,
		"content": object{
			"application/json": object{"schema": ref("FillRequest")},
		},
	}
}

// getOpenAPISpec returns the OpenAPI 3.0 specification
func getOpenAPISpec() object {
	categories := []string{"contract", "promissory_note", "report"}

	return object{
		"openapi": "3.0.3",
		"info": object{
			"title":       "Pocket Docs API",
			"description": "Local API for filling CRM document templates and exporting them as PDF",
			"version":     "1.0.0",
		},
		"servers": []object{
			{"url": "http://localhost:8080/api/v1", "description": "Local server"},
		},
		"paths": object{
			"/templates": object{
				"get": object{
					"summary":     "List templates",
					"description": "Lists templates from the CRM, or from the local cache when the CRM is unreachable",
					"parameters": []object{
						{
							"name":   "category",
							"in":     "query",
							"schema": object{"type": "string", "enum": categories},
						},
					},
					"responses": object{
						"200": jsonResponse("Templates", object{"type": "array", "items": ref("Template")}),
						"400": errorResponse("Unknown category"),
						"502": errorResponse("CRM unreachable and nothing cached"),
					},
				},
			},
			"/templates/{id}": object{
				"get": object{
					"summary":    "Get a template",
					"parameters": []object{idParam()},
					"responses": object{
						"200": jsonResponse("Template", ref("Template")),
						"404": errorResponse("Template not found"),
					},
				},
			},
			"/templates/{id}/markers": object{
				"get": object{
					"summary":     "List template markers",
					"description": "Markers in first-seen order with their catalog labels",
					"parameters":  []object{idParam()},
					"responses": object{
						"200": jsonResponse("Markers", ref("TemplateMarkers")),
						"404": errorResponse("Template not found"),
					},
				},
			},
			"/templates/{id}/preview": object{
				"post": object{
					"summary":     "Preview a filled template",
					"description": "Substitutes the values and returns the preview HTML. Missing markers become empty.",
					"parameters":  []object{idParam()},
					"requestBody": fillRequestBody(),
					"responses": object{
						"200": jsonResponse("Preview", ref("Preview")),
						"400": errorResponse("Invalid marker or value"),
						"404": errorResponse("Template not found"),
					},
				},
			},
			"/templates/{id}/export": object{
				"post": object{
					"summary":     "Export a filled template as PDF",
					"description": "Renders the filled template to an A4 PDF and returns it as an attachment named <title>_<dd.mm.yyyy>.pdf",
					"parameters":  []object{idParam()},
					"requestBody": fillRequestBody(),
					"responses": object{
						"200": object{
							"description": "PDF document",
							"headers": object{
								"Content-Disposition": object{
									"schema": object{"type": "string"},
								},
							},
							"content": object{
								"application/pdf": object{
									"schema": object{"type": "string", "format": "binary"},
								},
							},
						},
						"400": errorResponse("Invalid marker or value"),
						"404": errorResponse("Template not found"),
						"502": errorResponse("PDF rendering failed"),
					},
				},
			},
			"/search": object{
				"get": object{
					"summary": "Search templates",
					"parameters": []object{
						{"name": "q", "in": "query", "required": true, "schema": object{"type": "string"}},
						{"name": "category", "in": "query", "schema": object{"type": "string", "enum": categories}},
					},
					"responses": object{
						"200": jsonResponse("Matching templates", object{"type": "array", "items": ref("Template")}),
						"400": errorResponse("Missing query"),
					},
				},
			},
			"/fields": object{
				"get": object{
					"summary": "List catalog fields",
					"responses": object{
						"200": jsonResponse("Field groups", object{"type": "array", "items": ref("FieldGroup")}),
					},
				},
			},
			"/history": object{
				"get": object{
					"summary": "List recent exports",
					"parameters": []object{
						{
							"name":   "limit",
							"in":     "query",
							"schema": object{"type": "integer", "minimum": 1, "maximum": 1000, "default": 50},
						},
						{
							"name":   "template_id",
							"in":     "query",
							"schema": object{"type": "string", "format": "uuid"},
						},
					},
					"responses": object{
						"200": jsonResponse("Exports, newest first", object{"type": "array", "items": ref("ExportRecord")}),
					},
				},
			},
			"/health": object{
				"get": object{
					"summary": "Health check",
					"responses": object{
						"200": jsonResponse("Service status", ref("Health")),
					},
				},
			},
		},
		"components": object{
			"schemas": object{
				"APIResponse": object{
					"type": "object",
					"properties": object{
						"success":   object{"type": "boolean"},
						"data":      object{},
						"message":   object{"type": "string"},
						"timestamp": object{"type": "string", "format": "date-time"},
					},
					"required": []string{"success", "timestamp"},
				},
				"Template": object{
					"type": "object",
					"properties": object{
						"id":            object{"type": "string", "format": "uuid"},
						"title":         object{"type": "string"},
						"template_type": object{"type": "string", "enum": categories},
						"content_html":  object{"type": "string"},
						"placeholders":  object{"type": "array", "items": object{"type": "string"}},
						"usage_count":   object{"type": "integer"},
						"created_at":    object{"type": "string", "format": "date-time"},
						"updated_at":    object{"type": "string", "format": "date-time"},
					},
				},
				"MarkerInfo": object{
					"type": "object",
					"properties": object{
						"marker": object{"type": "string", "example": "{{kisi_tam_adi}}"},
						"label":  object{"type": "string"},
						"group":  object{"type": "string"},
						"known":  object{"type": "boolean"},
					},
				},
				"TemplateMarkers": object{
					"type": "object",
					"properties": object{
						"template_id": object{"type": "string", "format": "uuid"},
						"title":       object{"type": "string"},
						"category":    object{"type": "string", "enum": categories},
						"markers":     object{"type": "array", "items": ref("MarkerInfo")},
					},
				},
				"FillRequest": object{
					"type": "object",
					"properties": object{
						"values": object{
							"type":                 "object",
							"description":          "Marker to value. Keys may omit the {{ }} delimiters.",
							"additionalProperties": object{"type": "string", "maxLength": 10000},
							"example":              object{"{{kisi_tam_adi}}": "Ahmet Yılmaz"},
						},
					},
				},
				"Preview": object{
					"type": "object",
					"properties": object{
						"template_id": object{"type": "string", "format": "uuid"},
						"title":       object{"type": "string"},
						"markers":     object{"type": "array", "items": object{"type": "string"}},
						"missing":     object{"type": "array", "items": object{"type": "string"}},
						"html":        object{"type": "string"},
					},
				},
				"FieldGroup": object{
					"type": "object",
					"properties": object{
						"name": object{"type": "string"},
						"fields": object{
							"type": "array",
							"items": object{
								"type": "object",
								"properties": object{
									"tag":   object{"type": "string"},
									"label": object{"type": "string"},
									"group": object{"type": "string"},
								},
							},
						},
					},
				},
				"ExportRecord": object{
					"type": "object",
					"properties": object{
						"id":          object{"type": "string", "format": "uuid"},
						"template_id": object{"type": "string"},
						"title":       object{"type": "string"},
						"category":    object{"type": "string"},
						"file_name":   object{"type": "string"},
						"path":        object{"type": "string", "description": "Empty for exports streamed over the API"},
						"bytes":       object{"type": "integer"},
						"markers":     object{"type": "integer"},
						"created_at":  object{"type": "string", "format": "date-time"},
					},
				},
				"Health": object{
					"type": "object",
					"properties": object{
						"status":     object{"type": "string", "enum": []string{"healthy", "degraded"}},
						"service":    object{"type": "string"},
						"api":        object{"type": "string", "enum": []string{"reachable", "unreachable"}},
						"api_error":  object{"type": "string"},
						"export_dir": object{"type": "string"},
						"timestamp":  object{"type": "string", "format": "date-time"},
					},
				},
				"ErrorResponse": object{
					"type": "object",
					"properties": object{
						"error": object{
							"type": "object",
							"properties": object{
								"code":      object{"type": "string", "description": "Error code"},
								"message":   object{"type": "string", "description": "Error message"},
								"details":   object{"type": "string", "description": "Additional error details"},
								"context":   object{"type": "object", "description": "Request context such as the template id"},
								"retryable": object{"type": "boolean"},
								"timestamp": object{"type": "string", "format": "date-time"},
							},
							"required": []string{"code", "message", "timestamp"},
						},
					},
					"required": []string{"error"},
				},
			},
		},
	}
}
