package web

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
	"github.com/PlebeianApp/market-sub002/state/payments"
	"github.com/PlebeianApp/market-sub002/state/registry"
)

type invoiceRequest struct {
	Name   string `json:"name"`
	Pubkey string `json:"pubkey"`
	Tier   string `json:"tier"`
}

type confirmRequest struct {
	PaymentRequest string `json:"paymentRequest"`
	Preimage       string `json:"preimage"`
}

// NewServer builds the HTTP API: invoice issuance and the synchronous
// payment-confirmation channel, plus read-only resolution endpoints.
func NewServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.POST("/api/v1/names/invoice", func(c echo.Context) error {
		var request invoiceRequest
		if err := c.Bind(&request); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		invoice, err := payments.NewPendingInvoice(request.Name, request.Pubkey, request.Tier)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, echo.Map{
			"paymentRequest": invoice.PaymentRequest,
			"paymentHash":    invoice.PaymentHash,
			"amountSats":     invoice.AmountExpected,
		})
	})

	e.POST("/api/v1/names/confirm", func(c echo.Context) error {
		var request confirmRequest
		if err := c.Bind(&request); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		name, validUntil, err := payments.Confirm(request.PaymentRequest, request.Preimage)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, echo.Map{"name": name, "validUntil": validUntil})
	})

	e.GET("/api/v1/names/:name", func(c echo.Context) error {
		record, ok := registry.Lookup(c.Param("name"))
		if !ok {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "name not found"})
		}
		return c.JSON(http.StatusOK, echo.Map{
			"name":       record.Name,
			"owner":      record.Owner,
			"validUntil": record.ValidUntil,
		})
	})

	e.GET("/api/v1/names/:name/available", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"available": registry.IsAvailable(c.Param("name"))})
	})

	e.GET("/api/v1/tiers", func(c echo.Context) error {
		return c.JSON(http.StatusOK, registry.Tiers())
	})

	return e
}

// Start serves the API until shutdown.
func Start() {
	e := NewServer()
	addr := actors.MakeOrGetConfig().GetString("websocketAddr")
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			library.LogCLI(err.Error(), 1)
		}
	}()
	go func() {
		actors.GetWaitGroup().Add(1)
		<-actors.GetTerminateChan()
		e.Close()
		actors.GetWaitGroup().Done()
		library.LogCLI("HTTP API has shut down", 4)
	}()
	library.LogCLI("HTTP API listening on "+addr, 4)
}
