package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "EduStack Campus API",
        "description": "Access governance, enrollment and participation tracking",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Signup and login"},
        {"name": "Governance", "description": "Role requests and teacher assignments"},
        {"name": "Enrollments", "description": "Batch membership"},
        {"name": "Attendance", "description": "Attendance ledger and participation summaries"},
        {"name": "Notifications", "description": "In-app inbox"},
        {"name": "Reports", "description": "Participation exports"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/auth/signup": {
            "post": {
                "tags": ["Auth"],
                "summary": "Register a new account",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already registered"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and obtain a token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/role-requests": {
            "post": {
                "tags": ["Governance"],
                "summary": "Request a role elevation",
                "responses": {
                    "204": {"description": "Recorded"},
                    "409": {"description": "Role already held or request pending"}
                }
            }
        },
        "/users/{id}/role-requests/approve": {
            "post": {
                "tags": ["Governance"],
                "summary": "Approve a pending role request",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Granted"},
                    "401": {"description": "Insufficient rank"},
                    "404": {"description": "No pending request"}
                }
            }
        },
        "/users/{id}/role-requests/reject": {
            "post": {
                "tags": ["Governance"],
                "summary": "Reject a pending role request",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Cleared"}
                }
            }
        },
        "/users/{id}/roles": {
            "put": {
                "tags": ["Governance"],
                "summary": "Replace a user's role set",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Replaced"},
                    "409": {"description": "Invariant violation"}
                }
            }
        },
        "/modules/{id}/teachers": {
            "post": {
                "tags": ["Governance"],
                "summary": "Assign a teacher to a module",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Assigned"},
                    "409": {"description": "Already assigned"}
                }
            }
        },
        "/modules/{id}/teachers/{userId}": {
            "delete": {
                "tags": ["Governance"],
                "summary": "Remove a teacher from a module",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "userId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Removed"},
                    "409": {"description": "Last teacher of the module"}
                }
            }
        },
        "/enrollments": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll in a batch",
                "responses": {
                    "200": {"description": "Already enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Rate limited"}
                }
            }
        },
        "/batches/{id}/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Batch roster",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/{id}/whatsapp": {
            "put": {
                "tags": ["Enrollments"],
                "summary": "Record group-chat membership",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Updated"}
                }
            }
        },
        "/sessions/{id}/attendance": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark one student's attendance",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Not assigned to module"},
                    "429": {"description": "Rate limited"}
                }
            }
        },
        "/sessions/{id}/attendance/bulk": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark listed students present",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/{id}/participation/{userId}": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Participation summary",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "userId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/{id}/participation/{userId}/recompute": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Rebuild a participation summary",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "userId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List the caller's notifications",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications/{id}/read": {
            "put": {
                "tags": ["Notifications"],
                "summary": "Mark a notification read",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Read"},
                    "404": {"description": "Not found or already read"}
                }
            }
        },
        "/reports/batches/{id}/participation": {
            "get": {
                "tags": ["Reports"],
                "summary": "Export a batch participation report",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        }
    },
    "definitions": {
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
