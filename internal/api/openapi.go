package api

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the write-back API.
func buildOpenAPIDoc() map[string]any {
	bearer := []any{map[string]any{"BearerAuth": []string{}}}
	tableParam := pathParam("table", "Table id")
	recordParam := pathParam("record", "Record id")

	value := map[string]any{
		"oneOf": []any{
			map[string]any{"type": "string"},
			map[string]any{"type": "number"},
			map[string]any{"type": "null"},
		},
	}
	field := map[string]any{
		"type":     "object",
		"required": []string{"name"},
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"type": map[string]any{"type": "string", "enum": []string{"text", "number"}, "default": "text"},
		},
	}
	record := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":       map[string]any{"type": "string"},
			"table_id": map[string]any{"type": "string"},
			"fields":   map[string]any{"type": "object", "additionalProperties": value},
		},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "cellhook write-back API",
			"version": "1.0",
		},
		"paths": map[string]any{
			"/healthz": map[string]any{
				"get": operation("healthz", "Service health", nil, nil, responses("200", "Healthy")),
			},
			"/tables/{table}/fields": map[string]any{
				"parameters": []any{tableParam},
				"get": operation("listFields", "List the fields of a table", bearer, nil,
					responses("200", "Fields", "401", "Unauthorized", "403", "Insufficient scope", "404", "Table not found")),
				"post": operation("createField", "Declare a field; idempotent by name", bearer, jsonBody(field),
					responses("200", "Field already present", "201", "Field created", "401", "Unauthorized",
						"403", "Insufficient scope", "404", "Table not found", "422", "Invalid type")),
			},
			"/tables/{table}/records/{record}": map[string]any{
				"parameters": []any{tableParam, recordParam},
				"get": operation("getRecord", "Read a record", bearer, nil,
					responses("200", "Record", "401", "Unauthorized", "403", "Insufficient scope", "404", "Not found")),
				"patch": operation("updateRecord", "Write cells into a record", bearer,
					jsonBody(map[string]any{
						"type":       "object",
						"required":   []string{"fields"},
						"properties": map[string]any{"fields": map[string]any{"type": "object", "additionalProperties": value}},
					}),
					responses("200", "Updated record", "401", "Unauthorized", "403", "Insufficient scope",
						"404", "Not found", "422", "Unknown field or wrong type")),
			},
		},
		"components": map[string]any{
			"schemas": map[string]any{"Record": record, "Field": field},
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func operation(id, summary string, security []any, body map[string]any, resp map[string]any) map[string]any {
	op := map[string]any{
		"operationId": id,
		"summary":     summary,
		"responses":   resp,
	}
	if security != nil {
		op["security"] = security
	}
	if body != nil {
		op["requestBody"] = body
	}
	return op
}

func pathParam(name, description string) map[string]any {
	return map[string]any{
		"name":        name,
		"in":          "path",
		"required":    true,
		"description": description,
		"schema":      map[string]any{"type": "string"},
	}
}

func jsonBody(schema map[string]any) map[string]any {
	return map[string]any{
		"required": true,
		"content": map[string]any{
			"application/json": map[string]any{"schema": schema},
		},
	}
}

// responses pairs status codes with descriptions.
func responses(pairs ...string) map[string]any {
	out := make(map[string]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out[pairs[i]] = map[string]any{"description": pairs[i+1]}
	}
	return out
}
