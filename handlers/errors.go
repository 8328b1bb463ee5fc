package handlers

import (
	"errors"

	"order-of-ash/services"

	"github.com/gofiber/fiber/v2"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{services.ErrValidation, fiber.StatusBadRequest},
	{services.ErrNotFound, fiber.StatusNotFound},
	{services.ErrForbidden, fiber.StatusForbidden},
	{services.ErrPrerequisitesNotMet, fiber.StatusForbidden},
	{services.ErrFinalWindowClosed, fiber.StatusForbidden},
	{services.ErrNotPayableYet, fiber.StatusConflict},
	{services.ErrNotEnoughReferrals, fiber.StatusConflict},
	{services.ErrAlreadyClaimed, fiber.StatusConflict},
	{services.ErrCurseActive, fiber.StatusConflict},
	{services.ErrNothingToGrant, fiber.StatusConflict},
	{services.ErrCooldownActive, fiber.StatusTooManyRequests},
}

// respondError maps service errors to status codes; anything unknown is a 500 without details.
func respondError(c *fiber.Ctx, err error) error {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return c.Status(e.status).JSON(fiber.Map{
				"error":   e.err.Error(),
				"message": err.Error(),
			})
		}
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   services.ErrInternal.Error(),
		"message": "internal error, retry later",
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   services.ErrValidation.Error(),
		"message": msg,
	})
}
