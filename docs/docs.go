// Package docs holds the OpenAPI description served at /swagger.
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
    "securityDefinitions": {
        "WalletAddress": {
            "type": "apiKey",
            "name": "X-Wallet-Address",
            "in": "header"
        }
    },
    "paths": {
        "/signals": {
            "get": {
                "produces": ["application/json"],
                "tags": ["signals"],
                "summary": "List recent signals",
                "parameters": [
                    {"type": "integer", "description": "Maximum entries (1-500)", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["signals"],
                "summary": "Receive a rebalancing signal",
                "parameters": [
                    {"description": "Signal", "name": "request", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/handlers.SignalRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/signals/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["signals"],
                "summary": "Get a signal and its dispatch outcome",
                "parameters": [
                    {"type": "string", "description": "Signal ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/vault": {
            "get": {
                "security": [{"WalletAddress": []}],
                "produces": ["application/json"],
                "tags": ["vault"],
                "summary": "Get vault balances",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/vault/deposit": {
            "post": {
                "security": [{"WalletAddress": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["vault"],
                "summary": "Credit a vault balance",
                "parameters": [
                    {"description": "Movement", "name": "request", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/handlers.VaultMovementRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/vault/withdraw": {
            "post": {
                "security": [{"WalletAddress": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["vault"],
                "summary": "Debit a vault balance",
                "parameters": [
                    {"description": "Movement", "name": "request", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/handlers.VaultMovementRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "422": {"description": "Insufficient balance"}}
            }
        },
        "/settings": {
            "get": {
                "security": [{"WalletAddress": []}],
                "produces": ["application/json"],
                "tags": ["settings"],
                "summary": "Get rebalancing settings",
                "responses": {"200": {"description": "OK"}}
            },
            "put": {
                "security": [{"WalletAddress": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["settings"],
                "summary": "Update rebalancing settings",
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/settings/reset": {
            "post": {
                "security": [{"WalletAddress": []}],
                "produces": ["application/json"],
                "tags": ["settings"],
                "summary": "Reset settings to defaults",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/strategy/status": {
            "get": {
                "security": [{"WalletAddress": []}],
                "produces": ["application/json"],
                "tags": ["strategy"],
                "summary": "Eligibility, position and daily executions against the next signal",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/transactions": {
            "get": {
                "security": [{"WalletAddress": []}],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "List the owner's swap history",
                "parameters": [
                    {"type": "string", "name": "type", "in": "query"},
                    {"type": "string", "name": "status", "in": "query"},
                    {"type": "string", "description": "RFC3339", "name": "since", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "details": {"type": "object"}
            }
        },
        "handlers.SignalRequest": {
            "type": "object",
            "required": ["signal_type"],
            "properties": {
                "signal_type": {"type": "string", "enum": ["SOL_TO_USDC", "USDC_TO_SOL"]},
                "metadata": {"type": "object"}
            }
        },
        "handlers.VaultMovementRequest": {
            "type": "object",
            "required": ["asset", "amount"],
            "properties": {
                "asset": {"type": "string", "enum": ["sol", "usdc", "fee"]},
                "amount": {"type": "string", "example": "1.5"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Rebalance Service API",
	Description:      "SOL/USDC rebalancing signal intake, vaults and settings.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
