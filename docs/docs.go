// Package docs is generated by swag from the handler annotations.
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
        "/admin/orders/sweep": {
            "post": {
                "description": "Cancela las órdenes PENDING creadas hace más de ` + "`" + `hours` + "`" + ` horas.",
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Cancelar órdenes impagas",
                "parameters": [
                    {"type": "integer", "default": 24, "description": "Antigüedad mínima en horas", "name": "hours", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "integer"}}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/orders": {
            "post": {
                "description": "Reserva stock de cada línea y crea la orden en estado PENDING. Todo o nada.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Crear orden",
                "parameters": [
                    {"description": "Orden", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/order.PlaceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/order.View"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/orders/customer": {
            "get": {
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Listar órdenes de un cliente",
                "parameters": [
                    {"type": "string", "description": "Customer email", "name": "email", "in": "query", "required": true},
                    {"type": "integer", "default": 0, "description": "Page (0-based)", "name": "page", "in": "query"},
                    {"type": "integer", "default": 10, "description": "Page size", "name": "size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.PageView"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/orders/number/{number}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Obtener orden por número",
                "parameters": [
                    {"type": "string", "example": "ORD-20240115-A1B2C3D4", "description": "Order number", "name": "number", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.View"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/orders/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Obtener orden por id",
                "parameters": [
                    {"type": "string", "description": "Order ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.View"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/orders/{id}/cancel": {
            "post": {
                "description": "Solo PENDING, PAID o PROCESSING. Devuelve el stock de cada ítem.",
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Cancelar orden",
                "parameters": [
                    {"type": "string", "description": "Order ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.View"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/orders/{id}/status": {
            "put": {
                "description": "Acepta cualquier estado conocido desde cualquier estado. No mueve stock; para cancelar usar /orders/{id}/cancel.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Cambiar estado (administrativo)",
                "parameters": [
                    {"type": "string", "description": "Order ID", "name": "id", "in": "path", "required": true},
                    {"description": "Nuevo estado", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/order.UpdateStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.View"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/products": {
            "get": {
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "Listar productos (solo paginación)",
                "parameters": [
                    {"type": "integer", "default": 20, "description": "Límite", "name": "limit", "in": "query"},
                    {"type": "integer", "default": 0, "description": "Offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/product.ListResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "Crear producto",
                "parameters": [
                    {"description": "Producto", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/product.CreateProductRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/product.Product"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            }
        },
        "/products/low-stock": {
            "get": {
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "Productos con stock bajo",
                "parameters": [
                    {"type": "integer", "default": 10, "description": "Umbral (exclusivo)", "name": "threshold", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/product.Product"}}}
                }
            }
        },
        "/products/search": {
            "get": {
                "description": "Busca por nombre o descripción (case-insensitive). q requiere al menos 2 caracteres.",
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "Buscar productos",
                "parameters": [
                    {"type": "string", "description": "Texto a buscar", "name": "q", "in": "query", "required": true},
                    {"type": "integer", "default": 20, "description": "Límite", "name": "limit", "in": "query"},
                    {"type": "integer", "default": 0, "description": "Offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/product.ListResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            }
        },
        "/products/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "Obtener producto",
                "parameters": [
                    {"type": "string", "description": "Product ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/product.Product"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            },
            "put": {
                "description": "Solo se modifican los campos presentes en el body.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "Actualizar producto (parcial)",
                "parameters": [
                    {"type": "string", "description": "Product ID", "name": "id", "in": "path", "required": true},
                    {"description": "Campos a modificar", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/product.UpdateProductRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/product.Product"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/product.HTTPError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            },
            "delete": {
                "description": "Baja lógica: el producto deja de listarse pero las órdenes existentes lo siguen referenciando.",
                "tags": ["products"],
                "summary": "Desactivar producto",
                "parameters": [
                    {"type": "string", "description": "Product ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            }
        },
        "/products/{id}/stock": {
            "patch": {
                "description": "Suma delta al stock bajo el mismo lock de fila que usan las órdenes. Nunca queda negativo.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "Ajustar stock",
                "parameters": [
                    {"type": "string", "description": "Product ID", "name": "id", "in": "path", "required": true},
                    {"description": "Delta", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/product.AdjustStockRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/product.Product"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/product.HTTPError"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            }
        }
    },
    "definitions": {
        "order.ItemView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "product_id": {"type": "string"},
                "product_name": {"type": "string"},
                "quantity": {"type": "integer"},
                "subtotal": {"type": "string", "example": "71800.00"},
                "unit_price": {"type": "string", "example": "35900.00"}
            }
        },
        "order.LineRequest": {
            "type": "object",
            "required": ["product_id", "quantity"],
            "properties": {
                "product_id": {"type": "string", "example": "4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"},
                "quantity": {"type": "integer", "maximum": 99, "minimum": 1, "example": 2}
            }
        },
        "order.PageView": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/order.View"}},
                "page": {"type": "integer"},
                "size": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "order.PlaceRequest": {
            "type": "object",
            "required": ["customer_email", "customer_name", "items", "shipping_address"],
            "properties": {
                "customer_email": {"type": "string", "example": "ana@example.com"},
                "customer_name": {"type": "string", "maxLength": 100, "example": "Ana Pérez"},
                "items": {"type": "array", "maxItems": 50, "minItems": 1, "items": {"$ref": "#/definitions/order.LineRequest"}},
                "shipping_address": {"type": "string", "maxLength": 500, "example": "Av. Siempre Viva 742"}
            }
        },
        "order.UpdateStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "example": "PAID"}
            }
        },
        "order.View": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "customer_email": {"type": "string"},
                "customer_name": {"type": "string"},
                "id": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/order.ItemView"}},
                "order_number": {"type": "string", "example": "ORD-20240115-A1B2C3D4"},
                "shipping_address": {"type": "string"},
                "status": {
                    "type": "string",
                    "enum": ["PENDING", "PAID", "PROCESSING", "SHIPPED", "DELIVERED", "CANCELLED"],
                    "example": "PENDING"
                },
                "status_description": {"type": "string"},
                "total_amount": {"type": "string", "example": "71800.00"},
                "updated_at": {"type": "string"}
            }
        },
        "product.AdjustStockRequest": {
            "type": "object",
            "properties": {
                "delta": {"type": "integer", "example": -2}
            }
        },
        "product.CreateProductRequest": {
            "type": "object",
            "properties": {
                "description": {"type": "string", "example": "RGB 60%"},
                "name": {"type": "string", "example": "Mechanical Keyboard"},
                "price": {"type": "string", "example": "199.90"},
                "stock": {"type": "integer", "example": 10}
            }
        },
        "product.HTTPError": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "not found"}
            }
        },
        "product.ListResponse": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/product.Product"}},
                "limit": {"type": "integer"},
                "offset": {"type": "integer"},
                "q": {"type": "string"}
            }
        },
        "product.Product": {
            "type": "object",
            "properties": {
                "active": {"type": "boolean"},
                "created_at": {"type": "string"},
                "description": {"type": "string"},
                "id": {"type": "string"},
                "name": {"type": "string"},
                "price": {"type": "string"},
                "stock": {"type": "integer"},
                "updated_at": {"type": "string"}
            }
        },
        "product.UpdateProductRequest": {
            "type": "object",
            "properties": {
                "active": {"type": "boolean"},
                "description": {"type": "string"},
                "name": {"type": "string"},
                "price": {"type": "string"},
                "stock": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Ordenes API",
	Description:      "Colocación y cancelación de órdenes con reserva de stock atómica.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
