package ingest

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// RegisterAPIRoutes registers REST routes for device management.
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	devices := api.Group("/devices")

	// List connected devices
	devices.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"devices": h.GetDeviceInfos(),
			"count":   h.DeviceCount(),
		})
	})

	// Hub stats
	devices.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})

	devices.Get("/:id", func(c *fiber.Ctx) error {
		device := h.GetDevice(c.Params("id"))
		if device == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ErrDeviceNotConnected.Error()})
		}
		return c.JSON(device.Info())
	})

	// Zero a device's step count
	devices.Post("/:id/reset", func(c *fiber.Ctx) error {
		deviceID := c.Params("id")
		if err := h.Reset(deviceID); err != nil {
			status := fiber.StatusInternalServerError
			if errors.Is(err, ErrDeviceNotConnected) {
				status = fiber.StatusNotFound
			}
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "reset", "device_id": deviceID, "count": 0})
	})
}
