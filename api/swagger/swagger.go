package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Aqua D'Or Connect API",
        "description": "Booking, payment and calendar backend for the Aqua D'Or swim school portal",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and session management"},
        {"name": "Calendar", "description": "Public class and session calendar"},
        {"name": "Enrollments", "description": "Booking lifecycle"},
        {"name": "Payments", "description": "Checkout and verification"},
        {"name": "Cleanup", "description": "Cancellation expiry sweep"},
        {"name": "Exports", "description": "Admin report exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/calendar/classes": {
            "get": {
                "tags": ["Calendar"],
                "summary": "List bookable classes",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/calendar/sessions": {
            "get": {
                "tags": ["Calendar"],
                "summary": "List calendar sessions",
                "parameters": [
                    {"name": "classId", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "classId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/events": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List the audit trail of a booking",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/enrollments/{id}/cancel": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Cancel a booking",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/enrollments/{id}/reactivate": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Reactivate a cancelled booking",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Reactivation window expired"}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List the caller's swimmer profiles",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Register a swimmer profile",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error"}
                }
            }
        },
        "/payments/checkout": {
            "post": {
                "tags": ["Payments"],
                "summary": "Open a checkout session",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments/verify": {
            "post": {
                "tags": ["Payments"],
                "summary": "Verify a checkout session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VerifyPaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "Payment verified"},
                    "400": {"description": "Payment not completed"}
                }
            }
        },
        "/cleanup/run": {
            "post": {
                "tags": ["Cleanup"],
                "summary": "Run the cancellation expiry sweep",
                "responses": {
                    "200": {"description": "Sweep completed"},
                    "500": {"description": "Sweep failed"}
                }
            }
        },
        "/exports/enrollments": {
            "post": {
                "tags": ["Exports"],
                "summary": "Export the enrollment report",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/payments": {
            "post": {
                "tags": ["Exports"],
                "summary": "Export the payment report",
                "parameters": [
                    {"name": "from", "in": "query", "required": true, "type": "string"},
                    {"name": "to", "in": "query", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "VerifyPaymentRequest": {
            "type": "object",
            "properties": {
                "sessionId": {"type": "string"}
            },
            "required": ["sessionId"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
