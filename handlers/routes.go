package handlers

import (
	"github.com/labstack/echo/v5"
)

// RegisterRoutes mounts the public API. adminMW guards the inventory
// and catalog mutations; checkoutMW guards the purchase path (rate
// limiting, bot filtering).
func RegisterRoutes(e *echo.Echo, events *EventHandler, tickets *TicketHandler, payments *PaymentHandler, adminMW echo.MiddlewareFunc, checkoutMW ...echo.MiddlewareFunc) {
	api := e.Group("/api/v1")

	api.GET("/events", events.ListEvents)
	api.POST("/events", events.CreateEvent, adminMW)
	api.GET("/events/:id", events.GetEvent)
	api.PUT("/events/:id", events.UpdateEvent, adminMW)
	api.DELETE("/events/:id", events.DeleteEvent, adminMW)
	api.GET("/events/:id/seating", events.GetSeating)
	api.GET("/events/:id/tickets", tickets.GetAvailability)

	api.POST("/tickets/provision", tickets.Provision, adminMW)
	api.POST("/tickets/refund", tickets.Refund, adminMW)
	api.GET("/tickets/:id/document", tickets.GetDocument)

	api.POST("/checkout", payments.Checkout, checkoutMW...)
	api.POST("/payments/webhook", payments.Webhook)
	api.GET("/payments/:reference/status", payments.PaymentStatus)
	api.POST("/payments/:reference/cancel", payments.CancelPayment)
}
