// Package docs holds the OpenAPI document served at /swagger/*any.
// Regenerate with `swag init -g cmd/relay/main.go` after changing handler
// annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/routing": {
            "get": {
                "security": [{"AdminToken": []}],
                "produces": ["application/json"],
                "tags": ["Routing"],
                "summary": "Get the active route",
                "operationId": "getRouting",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.RoutingConfig"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Routing not configured", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "put": {
                "security": [{"AdminToken": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Routing"],
                "summary": "Replace the route",
                "operationId": "putRouting",
                "parameters": [
                    {"description": "Routing payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.UpsertRoutingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.RoutingConfig"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/validations": {
            "get": {
                "security": [{"AdminToken": []}],
                "produces": ["application/json"],
                "tags": ["Validations"],
                "summary": "List integration health",
                "operationId": "listValidations",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListValidationsResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/validations/{integration}/check": {
            "post": {
                "security": [{"AdminToken": []}],
                "produces": ["application/json"],
                "tags": ["Validations"],
                "summary": "Run an integration health check",
                "operationId": "checkValidation",
                "parameters": [
                    {"enum": ["twilio", "intercom"], "type": "string", "description": "Integration", "name": "integration", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.IntegrationValidation"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Unknown integration", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/events": {
            "get": {
                "security": [{"AdminToken": []}],
                "produces": ["application/json"],
                "tags": ["Events"],
                "summary": "List relay events",
                "operationId": "listEvents",
                "parameters": [
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"},
                    {"maximum": 200, "minimum": 1, "type": "integer", "default": 50, "description": "Max events", "name": "limit", "in": "query"},
                    {"enum": ["twilio_to_intercom", "intercom_to_twilio"], "type": "string", "description": "Direction filter", "name": "direction", "in": "query"},
                    {"enum": ["queued", "ok", "retrying", "failed", "dropped"], "type": "string", "description": "Status filter", "name": "status", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListEventsResponse"}, "headers": {"ETag": {"type": "string", "description": "Weak ETag for current result"}}},
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/relay/{message_sid}/replay": {
            "post": {
                "security": [{"AdminToken": []}],
                "produces": ["application/json"],
                "tags": ["Relay"],
                "summary": "Replay a relay",
                "operationId": "replayMessage",
                "parameters": [
                    {"type": "string", "description": "Twilio MessageSid or synthesized key", "name": "message_sid", "in": "path", "required": true}
                ],
                "responses": {
                    "202": {"description": "Retrying event", "schema": {"$ref": "#/definitions/domain.Event"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "No relay job for message", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Already relayed or in progress", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Dispatcher stopped", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.RoutingConfig": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "number_to": {"type": "string"},
                "workspace_id": {"type": "string"},
                "enabled": {"type": "boolean"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "domain.IntegrationValidation": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "integration": {"type": "string"},
                "status": {"type": "string"},
                "last_checked_at": {"type": "string"},
                "last_error_code": {"type": "string"},
                "last_error_detail": {"type": "string"},
                "last_webhook_received_at": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "domain.Event": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "env": {"type": "string"},
                "workspace_id": {"type": "string"},
                "number_to": {"type": "string"},
                "direction": {"type": "string"},
                "status": {"type": "string"},
                "error_code": {"type": "string"},
                "error_detail": {"type": "string"},
                "twilio_message_sid": {"type": "string"},
                "intercom_conversation_id": {"type": "string"},
                "idempotency_key": {"type": "string"},
                "timestamp": {"type": "string"},
                "retry_count": {"type": "integer"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "routing not configured"}
            }
        },
        "handlers.UpsertRoutingRequest": {
            "type": "object",
            "required": ["number_to", "workspace_id"],
            "properties": {
                "number_to": {"type": "string", "example": "+15550000"},
                "workspace_id": {"type": "string", "example": "abc123"},
                "enabled": {"type": "boolean", "example": true}
            }
        },
        "handlers.ListValidationsResponse": {
            "type": "object",
            "properties": {
                "validations": {"type": "array", "items": {"$ref": "#/definitions/domain.IntegrationValidation"}}
            }
        },
        "handlers.ListEventsResponse": {
            "type": "object",
            "properties": {
                "events": {"type": "array", "items": {"$ref": "#/definitions/domain.Event"}},
                "total": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "AdminToken": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "WhatsApp Intercom Relay API",
	Description:      "Operator API of the WhatsApp to Intercom relay.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
