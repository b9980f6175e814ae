package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/ordenes-stock/internal/httpx"
	ord "github.com/MikeMC777/ordenes-stock/internal/order"
)

// orderService is what the handlers need from *ordering.Service.
type orderService interface {
	PlaceOrder(ctx context.Context, req ord.PlaceRequest) (*ord.Order, error)
	CancelOrder(ctx context.Context, id string) (*ord.Order, error)
	UpdateStatus(ctx context.Context, id string, status ord.Status) (*ord.Order, error)
	GetOrderByID(ctx context.Context, id string) (*ord.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*ord.Order, error)
	GetOrdersByCustomer(ctx context.Context, email string, p ord.PageRequest) (*ord.Page, error)
	SweepUnpaidOrders(ctx context.Context, threshold time.Duration) (int, error)
}

// @Summary      Crear orden
// @Description  Reserva stock de cada línea y crea la orden en estado PENDING. Todo o nada.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        body  body      ord.PlaceRequest  true  "Orden"
// @Success      201   {object}  ord.View
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /orders [post]
func createOrderHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.PlaceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
			return
		}
		o, err := svc.PlaceOrder(c.Request.Context(), req)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ord.ToView(o))
	}
}

// @Summary      Obtener orden por id
// @Tags         orders
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  ord.View
// @Failure      404  {object}  map[string]string
// @Router       /orders/{id} [get]
func getOrderHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.GetOrderByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, ord.ToView(o))
	}
}

// @Summary      Obtener orden por número
// @Tags         orders
// @Produce      json
// @Param        number  path      string  true  "Order number"  example(ORD-20240115-A1B2C3D4)
// @Success      200     {object}  ord.View
// @Failure      404     {object}  map[string]string
// @Router       /orders/number/{number} [get]
func getOrderByNumberHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.GetOrderByNumber(c.Request.Context(), c.Param("number"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, ord.ToView(o))
	}
}

// @Summary      Listar órdenes de un cliente
// @Tags         orders
// @Produce      json
// @Param        email  query     string  true   "Customer email"
// @Param        page   query     int     false  "Page (0-based)"  default(0)
// @Param        size   query     int     false  "Page size"       default(10)
// @Success      200    {object}  ord.PageView
// @Failure      400    {object}  map[string]string
// @Router       /orders/customer [get]
func listOrdersByCustomerHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := strings.TrimSpace(c.Query("email"))
		if email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
		size, _ := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(ord.DefaultPageSize)))

		p, err := svc.GetOrdersByCustomer(c.Request.Context(), email, ord.PageRequest{Page: page, Size: size})
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, ord.ToPageView(p))
	}
}

// @Summary      Cambiar estado (administrativo)
// @Description  Acepta cualquier estado conocido desde cualquier estado. No mueve stock; para cancelar usar /orders/{id}/cancel.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id    path      string                   true  "Order ID"
// @Param        body  body      ord.UpdateStatusRequest  true  "Nuevo estado"
// @Success      200   {object}  ord.View
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /orders/{id}/status [put]
func updateOrderStatusHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		status, err := ord.ParseStatus(req.Status)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		o, err := svc.UpdateStatus(c.Request.Context(), c.Param("id"), status)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, ord.ToView(o))
	}
}

// @Summary      Cancelar orden
// @Description  Solo PENDING, PAID o PROCESSING. Devuelve el stock de cada ítem.
// @Tags         orders
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  ord.View
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /orders/{id}/cancel [post]
func cancelOrderHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.CancelOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, ord.ToView(o))
	}
}

// maxSweepHours keeps hours * time.Hour inside time.Duration.
const maxSweepHours = math.MaxInt64 / int64(time.Hour)

// @Summary      Cancelar órdenes impagas
// @Description  Cancela las órdenes PENDING creadas hace más de `hours` horas.
// @Tags         admin
// @Produce      json
// @Param        hours  query     int  false  "Antigüedad mínima en horas"  default(24)
// @Success      200    {object}  map[string]int
// @Failure      400    {object}  map[string]string
// @Router       /admin/orders/sweep [post]
func sweepUnpaidHandler(svc orderService, def time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		threshold := def
		if h := c.Query("hours"); h != "" {
			n, err := strconv.ParseInt(h, 10, 64)
			if err != nil || n <= 0 || n > maxSweepHours {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("hours must be an integer between 1 and %d", maxSweepHours)})
				return
			}
			threshold = time.Duration(n) * time.Hour
		}
		cancelled, err := svc.SweepUnpaidOrders(c.Request.Context(), threshold)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
	}
}
