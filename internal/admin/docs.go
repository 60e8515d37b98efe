package admin

import "github.com/swaggo/swag"

// SwaggerInfo is the OpenAPI document served under /swagger.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Switchyard API",
	Description:      "Pipeline supervision, component directory and event ingest",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/pipelines": {
            "get": {
                "produces": ["application/json"],
                "tags": ["pipelines"],
                "summary": "List pipelines",
                "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["pipelines"],
                "summary": "Set up a pipeline",
                "parameters": [{"in": "body", "name": "pipeline", "required": true, "schema": {"type": "object"}}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}
            }
        },
        "/pipelines/{id}": {
            "delete": {
                "produces": ["application/json"],
                "tags": ["pipelines"],
                "summary": "Shut down a pipeline",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "202": {"description": "Accepted"}, "404": {"description": "Not Found"}}
            }
        },
        "/directory/{kind}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["directory"],
                "summary": "Look up or list components of a kind",
                "parameters": [
                    {"in": "path", "name": "kind", "required": true, "type": "string"},
                    {"in": "query", "name": "ids", "type": "string"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/directory/{kind}/{id}": {
            "delete": {
                "produces": ["application/json"],
                "tags": ["directory"],
                "summary": "Deregister a component",
                "parameters": [
                    {"in": "path", "name": "kind", "required": true, "type": "string"},
                    {"in": "path", "name": "id", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/dispatchers/{id}/events": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["dispatchers"],
                "summary": "Ingest an event into a dispatcher",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "event", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {"202": {"description": "Accepted"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}
            }
        }
    }
}`
