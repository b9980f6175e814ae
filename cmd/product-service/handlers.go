package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/ordenes-stock/internal/httpx"
	prod "github.com/MikeMC777/ordenes-stock/internal/product"
)

// catalogService is what the handlers need from *catalog.Service.
type catalogService interface {
	Create(ctx context.Context, req prod.CreateProductRequest) (*prod.Product, error)
	Get(ctx context.Context, id string) (*prod.Product, error)
	List(ctx context.Context, limit, offset int) ([]prod.Product, error)
	Search(ctx context.Context, q string, limit, offset int) ([]prod.Product, error)
	Update(ctx context.Context, id string, req prod.UpdateProductRequest) (*prod.Product, error)
	AdjustStock(ctx context.Context, id string, delta int) (*prod.Product, error)
	Deactivate(ctx context.Context, id string) (bool, error)
	LowStock(ctx context.Context, threshold int) ([]prod.Product, error)
}

func paging(c *gin.Context) prod.Query {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(prod.DefaultLimit)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return prod.Query{Limit: limit, Offset: offset}.Normalize()
}

// @Summary      Listar productos (solo paginación)
// @Tags         products
// @Produce      json
// @Param        limit   query     int  false  "Límite"  default(20)
// @Param        offset  query     int  false  "Offset"  default(0)
// @Success      200     {object}  prod.ListResponse
// @Failure      500     {object}  prod.HTTPError
// @Router       /products [get]
func listOnlyHandler(svc catalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := paging(c)
		items, err := svc.List(c.Request.Context(), q.Limit, q.Offset)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, prod.ListResponse{Limit: q.Limit, Offset: q.Offset, Items: items})
	}
}

// @Summary      Buscar productos
// @Description  Busca por nombre o descripción (case-insensitive). q requiere al menos 2 caracteres.
// @Tags         products
// @Produce      json
// @Param        q       query     string  true   "Texto a buscar"
// @Param        limit   query     int     false  "Límite"  default(20)
// @Param        offset  query     int     false  "Offset"  default(0)
// @Success      200     {object}  prod.ListResponse
// @Failure      400     {object}  prod.HTTPError
// @Router       /products/search [get]
func searchHandler(svc catalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		term := strings.TrimSpace(c.Query("q"))
		if term == "" {
			c.JSON(http.StatusBadRequest, prod.HTTPError{Error: "q is required"})
			return
		}
		q := paging(c)
		items, err := svc.Search(c.Request.Context(), term, q.Limit, q.Offset)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, prod.ListResponse{Q: term, Limit: q.Limit, Offset: q.Offset, Items: items})
	}
}

// @Summary      Productos con stock bajo
// @Tags         products
// @Produce      json
// @Param        threshold  query     int  false  "Umbral (exclusivo)"  default(10)
// @Success      200        {array}   prod.Product
// @Router       /products/low-stock [get]
func lowStockHandler(svc catalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		threshold, _ := strconv.Atoi(c.Query("threshold"))
		items, err := svc.LowStock(c.Request.Context(), threshold)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

// @Summary      Obtener producto
// @Tags         products
// @Produce      json
// @Param        id   path      string  true  "Product ID"
// @Success      200  {object}  prod.Product
// @Failure      404  {object}  prod.HTTPError
// @Router       /products/{id} [get]
func getProductHandler(svc catalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// @Summary      Crear producto
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        body  body      prod.CreateProductRequest  true  "Producto"
// @Success      201   {object}  prod.Product
// @Failure      400   {object}  prod.HTTPError
// @Router       /products [post]
func createProductHandler(svc catalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req prod.CreateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, prod.HTTPError{Error: "invalid json"})
			return
		}
		p, err := svc.Create(c.Request.Context(), req)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

// @Summary      Actualizar producto (parcial)
// @Description  Solo se modifican los campos presentes en el body.
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        id    path      string                     true  "Product ID"
// @Param        body  body      prod.UpdateProductRequest  true  "Campos a modificar"
// @Success      200   {object}  prod.Product
// @Failure      400   {object}  prod.HTTPError
// @Failure      404   {object}  prod.HTTPError
// @Router       /products/{id} [put]
func updateProductHandler(svc catalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req prod.UpdateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, prod.HTTPError{Error: "invalid json"})
			return
		}
		p, err := svc.Update(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// @Summary      Ajustar stock
// @Description  Suma delta al stock bajo el mismo lock de fila que usan las órdenes. Nunca queda negativo.
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        id    path      string                   true  "Product ID"
// @Param        body  body      prod.AdjustStockRequest  true  "Delta"
// @Success      200   {object}  prod.Product
// @Failure      404   {object}  prod.HTTPError
// @Failure      409   {object}  prod.HTTPError
// @Router       /products/{id}/stock [patch]
func adjustStockHandler(svc catalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req prod.AdjustStockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, prod.HTTPError{Error: "invalid json"})
			return
		}
		p, err := svc.AdjustStock(c.Request.Context(), c.Param("id"), req.Delta)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// @Summary      Desactivar producto
// @Description  Baja lógica: el producto deja de listarse pero las órdenes existentes lo siguen referenciando.
// @Tags         products
// @Param        id   path  string  true  "Product ID"
// @Success      204
// @Failure      404  {object}  prod.HTTPError
// @Router       /products/{id} [delete]
func deleteProductHandler(svc catalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := svc.Deactivate(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, prod.HTTPError{Error: "not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
