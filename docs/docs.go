// Package docs registers the receiver's OpenAPI document with swag so that
// http-swagger can serve it under /swagger/.
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
        "/webhooks/coinpayments": {
            "post": {
                "description": "Verifies the HMAC signature and timestamp of a notification, drops replays, validates the payload and publishes it to the configured broker",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "Receive a CoinPayments webhook",
                "parameters": [
                    {"type": "string", "description": "HMAC of the signed message", "name": "X-CoinPayments-Signature", "in": "header", "required": true},
                    {"type": "string", "description": "Signing time", "name": "X-CoinPayments-Timestamp", "in": "header", "required": true},
                    {"type": "string", "description": "Merchant client id", "name": "X-CoinPayments-Client", "in": "header"},
                    {"type": "string", "description": "Notification id", "name": "X-CoinPayments-Event-Id", "in": "header"},
                    {"description": "Notification body", "name": "payload", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "Accepted, duplicate or filtered", "schema": {"$ref": "#/definitions/handlers.WebhookResponse"}},
                    "400": {"description": "Missing or malformed headers", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "401": {"description": "Not authentic", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "413": {"description": "Body too large", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "422": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "503": {"description": "Broker unavailable", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/health": {
            "get": {
                "description": "Returns the health status of the receiver and its dependencies",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "Health status", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Storage unavailable", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/notifications": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns the newest audit rows first. Bodies are not stored; each row carries a SHA-256 of the raw body.",
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "List received notifications",
                "parameters": [
                    {"type": "integer", "description": "Maximum rows (default 50, max 500)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Notifications", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Invalid limit", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "500": {"description": "Storage error", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/api/stats": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Counts notifications per outcome over a trailing window",
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "Notification statistics",
                "parameters": [
                    {"type": "string", "description": "Trailing window such as 1h, 24h or 7d (default 24h)", "name": "window", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Counts by outcome", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Invalid window", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "500": {"description": "Storage error", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        }
    },
    "definitions": {
        "errors.Response": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "type": {"type": "string"},
                        "message": {"type": "string"},
                        "code": {"type": "string"}
                    }
                }
            }
        },
        "handlers.WebhookResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "event_id": {"type": "string"},
                "message_id": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "CoinPayments Webhook Receiver API",
	Description:      "Verifies CoinPayments webhook notifications and forwards them to a message broker.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
