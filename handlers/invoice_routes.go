package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"order-of-ash/middleware"
	"order-of-ash/services"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
)

const streamMaxLifetime = 10 * time.Minute

type resolveRequest struct {
	Success *bool `json:"success"`
}

type markPaidRequest struct {
	TxHash string `json:"tx_hash"`
}

func SetupInvoiceRoutes(app *fiber.App, d Deps, auth, limit fiber.Handler) {
	app.Post("/invoices", auth, limit, func(c *fiber.Ctx) error {
		inv, err := d.Invoices.Create(c.UserContext(), middleware.PlayerID(c))
		if err != nil {
			return respondError(c, err)
		}
		status := fiber.StatusCreated
		if inv.Reused {
			status = fiber.StatusOK
		}
		return c.Status(status).JSON(inv)
	})

	app.Get("/invoices/:id", auth, func(c *fiber.Ctx) error {
		view, err := d.Invoices.Status(c.UserContext(), middleware.PlayerID(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(view)
	})

	app.Get("/invoices/:id/stream", middleware.SSEAuthMiddleware(d.Sessions, d.Logger), func(c *fiber.Ctx) error {
		return streamInvoice(c, d)
	})

	app.Post("/invoices/:id/resolve", auth, limit, func(c *fiber.Ctx) error {
		var req resolveRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if req.Success == nil {
			return badRequest(c, "success is required")
		}
		res, err := d.Invoices.Resolve(c.UserContext(), middleware.PlayerID(c), c.Params("id"), *req.Success)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	// Payment confirmation from trusted internal callers
	internal := app.Group("/internal", middleware.ServiceTokenMiddleware(d.ServiceToken, d.Logger))
	internal.Post("/invoices/:id/paid", func(c *fiber.Ctx) error {
		var req markPaidRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "invalid request body")
			}
		}
		changed, err := d.Invoices.MarkPaid(c.UserContext(), c.Params("id"), req.TxHash)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"invoice_id": c.Params("id"), "changed": changed})
	})
}

// streamInvoice pushes the invoice status as server-sent events until it is processed.
func streamInvoice(c *fiber.Ctx, d Deps) error {
	playerID := middleware.PlayerID(c)
	// the stream writer outlives c, so the id must not point into its buffers
	invoiceID := fiberutils.CopyString(c.Params("id"))

	// ownership and existence are checked before the stream opens
	first, err := d.Invoices.Status(c.UserContext(), playerID, invoiceID)
	if err != nil {
		return respondError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	reqCtx := c.Context()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithTimeout(context.Background(), streamMaxLifetime)
		defer cancel()

		ticker := time.NewTicker(d.StreamInterval)
		defer ticker.Stop()

		last := first
		if !writeStatusEvent(w, last, d.Logger) || last.Processed {
			return
		}

		for {
			select {
			case <-ticker.C:
				view, err := d.Invoices.Status(ctx, playerID, invoiceID)
				if err != nil {
					d.Logger.Warn("invoice stream poll failed", zap.String("invoice_id", invoiceID), zap.Error(err))
					continue
				}
				if view.Status == last.Status && view.Processed == last.Processed {
					// keepalive
					if _, err := w.WriteString(":\n\n"); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
					continue
				}
				last = view
				if !writeStatusEvent(w, view, d.Logger) || view.Processed {
					return
				}
			case <-ctx.Done():
				return
			case <-reqCtx.Done():
				return
			}
		}
	})
	return nil
}

func writeStatusEvent(w *bufio.Writer, view *services.InvoiceView, logger *zap.Logger) bool {
	payload, err := json.Marshal(view)
	if err != nil {
		logger.Error("encoding invoice view failed", zap.String("invoice_id", view.InvoiceID), zap.Error(err))
		return false
	}
	if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload); err != nil {
		return false
	}
	return w.Flush() == nil
}
