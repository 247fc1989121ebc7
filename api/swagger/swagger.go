package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "VerbaLink Booking API",
        "description": "Booking, payment and meeting coordination core for the VerbaLink tutoring marketplace",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Slots", "description": "Bookable slot discovery"},
        {"name": "Bookings", "description": "Booking lifecycle"},
        {"name": "Payments", "description": "Charges, saved methods and receipts"},
        {"name": "Refunds", "description": "Refund requests and admin review"},
        {"name": "Teachers", "description": "Availability and earnings"}
    ],
    "paths": {
        "/slots": {
            "get": {
                "tags": ["Slots"],
                "summary": "List bookable slots for a teacher's gig on a date",
                "parameters": [
                    {"name": "teacher_id", "in": "query", "type": "string", "required": true},
                    {"name": "gig_id", "in": "query", "type": "string", "required": true},
                    {"name": "date", "in": "query", "type": "string", "required": true, "description": "YYYY-MM-DD in the teacher's timezone"}
                ],
                "responses": {
                    "200": {"description": "Ordered, disjoint slots", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown teacher or gig"},
                    "422": {"description": "Date outside the booking window"}
                }
            }
        },
        "/bookings": {
            "get": {
                "tags": ["Bookings"],
                "summary": "List the caller's bookings",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Bookings"],
                "summary": "Create a booking in PENDING",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot unavailable"},
                    "422": {"description": "Time not bookable"}
                }
            }
        },
        "/bookings/{id}": {
            "get": {
                "tags": ["Bookings"],
                "summary": "Fetch one booking",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/bookings/{id}/confirm": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Teacher confirms; meeting credentials are provisioned",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "Confirmed with credentials"},
                    "403": {"description": "Caller is not the booking's teacher"},
                    "409": {"description": "Invalid transition"},
                    "503": {"description": "Video provider unavailable"}
                }
            }
        },
        "/bookings/{id}/cancel": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Cancel a pending or confirmed booking",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "Cancelled"}, "409": {"description": "Invalid transition"}}
            }
        },
        "/bookings/{id}/reschedule": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Replace a booking with a new PENDING row at a new time",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "Replacement booking"}, "409": {"description": "Invalid transition or conflict"}}
            }
        },
        "/bookings/{id}/complete": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Mark a paid booking completed",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "Completed"}, "409": {"description": "Too early or invalid transition"}}
            }
        },
        "/payments/intent": {
            "post": {
                "tags": ["Payments"],
                "summary": "Initiate a charge for a confirmed booking",
                "responses": {
                    "200": {"description": "Client secret and payment id"},
                    "409": {"description": "Already paid or invalid state"}
                }
            }
        },
        "/payments/webhook": {
            "post": {
                "tags": ["Payments"],
                "summary": "Card processor webhook receiver",
                "responses": {"200": {"description": "Received"}, "400": {"description": "Bad signature"}}
            }
        },
        "/payments/methods": {
            "get": {
                "tags": ["Payments"],
                "summary": "List the caller's saved payment methods",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/payments/{id}/receipt": {
            "get": {
                "tags": ["Payments"],
                "summary": "Download the PDF receipt for a settled payment",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "produces": ["application/pdf"],
                "responses": {"200": {"description": "PDF receipt"}, "409": {"description": "Payment not settled"}}
            }
        },
        "/refunds": {
            "post": {
                "tags": ["Refunds"],
                "summary": "Request a refund for a paid booking",
                "responses": {"200": {"description": "Refund request"}, "409": {"description": "Not refundable"}}
            }
        },
        "/admin/refunds/{id}": {
            "post": {
                "tags": ["Refunds"],
                "summary": "Administrator approves or rejects a refund in review",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "Resolved request"}, "403": {"description": "Not an administrator"}}
            }
        },
        "/teachers/me/availability": {
            "get": {
                "tags": ["Teachers"],
                "summary": "List the caller's availability rules",
                "responses": {"200": {"description": "OK"}}
            },
            "put": {
                "tags": ["Teachers"],
                "summary": "Replace the caller's full availability rule set",
                "responses": {"200": {"description": "Stored rules"}, "400": {"description": "Overlapping or malformed rules"}}
            }
        },
        "/teachers/me/earnings": {
            "get": {
                "tags": ["Teachers"],
                "summary": "Earnings balance and per-session history",
                "responses": {"200": {"description": "OK"}}
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
