// Package docs holds the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "CipherLens Maintainers"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/app.Health"}}
                }
            }
        },
        "/api/info": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "API name, version and features",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}}
                }
            }
        },
        "/api/detect/url": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["detection"],
                "summary": "Score a URL by its URL features",
                "parameters": [
                    {"description": "URL to score", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.DetectURLRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/api/detect/content": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["detection"],
                "summary": "Score a URL together with its page",
                "parameters": [
                    {"description": "URL and page", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.DetectContentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/api/detect/batch": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["detection"],
                "summary": "Score many URLs by their URL features",
                "parameters": [
                    {"description": "URLs to score", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.DetectBatchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/api/detect/email": {
            "post": {
                "consumes": ["text/plain"],
                "produces": ["application/json"],
                "tags": ["detection"],
                "summary": "Scan a raw RFC 5322 message",
                "parameters": [
                    {"description": "raw message", "name": "message", "in": "body", "required": true, "schema": {"type": "string"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/api/detect/status/{taskID}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["detection"],
                "summary": "Status of a detection task",
                "parameters": [
                    {"type": "string", "description": "task id", "name": "taskID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/api/explain/features": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["explain"],
                "summary": "Attribute a feature mapping",
                "parameters": [
                    {"description": "features and explainer", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.ExplainRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/api/explain/html": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["explain"],
                "summary": "Attribute a feature mapping and render it as HTML",
                "parameters": [
                    {"description": "features and explainer", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.ExplainRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/api/explain/elements": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["explain"],
                "summary": "Locate the page elements behind the top attributions",
                "parameters": [
                    {"description": "features, explainer and html", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.ExplainRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/api/feedback/submit": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["feedback"],
                "summary": "Grade a stored verdict",
                "parameters": [
                    {"description": "feedback", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.FeedbackRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/api/statistics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["reporting"],
                "summary": "Global scan counters",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}}
                }
            }
        },
        "/api/recent-detections": {
            "get": {
                "produces": ["application/json"],
                "tags": ["reporting"],
                "summary": "Most recent stored detections",
                "parameters": [
                    {"type": "integer", "default": 10, "description": "how many", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}}
                }
            }
        },
        "/api/compare": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["reporting"],
                "summary": "Compare a suspect host with a reference or the closest brand",
                "parameters": [
                    {"description": "hosts", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.CompareRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/api/snapshots/{snapshotID}": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["reporting"],
                "summary": "Page kept by a content detection, served as plain text",
                "parameters": [
                    {"type": "string", "description": "snapshot id", "name": "snapshotID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/api/dataset/load": {
            "post": {
                "description": "The request body is the CSV (url,is_phishing,category). An empty body loads the configured default dataset.",
                "consumes": ["text/plain"],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Load a labelled CSV dataset in a background job",
                "responses": {
                    "202": {"description": "Accepted", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/api/jobs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "All known jobs",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}}
                }
            }
        },
        "/api/jobs/{jobID}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "One job",
                "parameters": [
                    {"type": "string", "description": "job id", "name": "jobID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["jobs"],
                "summary": "Cancel a job",
                "parameters": [
                    {"type": "string", "description": "job id", "name": "jobID", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "app.Health": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "timestamp": {"type": "string"},
                "database": {"type": "string"}
            }
        },
        "server.CompareRequest": {
            "type": "object",
            "properties": {
                "suspect": {"type": "string", "example": "paypa1.com"},
                "reference": {"type": "string", "example": "paypal.com"}
            }
        },
        "server.DetectBatchRequest": {
            "type": "object",
            "properties": {
                "urls": {"type": "array", "items": {"type": "string"}}
            }
        },
        "server.DetectContentRequest": {
            "type": "object",
            "properties": {
                "url": {"type": "string", "example": "http://paypa1.com/login"},
                "content": {"type": "string"},
                "fetch": {"type": "boolean", "example": false}
            }
        },
        "server.DetectURLRequest": {
            "type": "object",
            "properties": {
                "url": {"type": "string", "example": "http://192.168.1.1/paypal/login.php"}
            }
        },
        "server.ErrorResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": false},
                "error": {"type": "string", "example": "URL is required"}
            }
        },
        "server.ExplainRequest": {
            "type": "object",
            "properties": {
                "features": {"type": "object", "additionalProperties": {"type": "number"}},
                "explainer": {"type": "string", "example": "shap"},
                "html": {"type": "string"}
            }
        },
        "server.FeedbackRequest": {
            "type": "object",
            "properties": {
                "url": {"type": "string", "example": "http://paypa1.com/login"},
                "isCorrect": {"type": "boolean", "example": true},
                "comments": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "CipherLens API",
	Description:      "Phishing detection over URLs, pages and email, with SHAP/LIME style explanations.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
