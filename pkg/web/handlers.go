package web

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-gazer/pkg/registry"
)

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleTrackers(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"active":    s.ctrl.Status().Tracker,
		"available": s.ctrl.TrackerNames(),
	})
}

func (s *Server) handleRegressions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"active":    s.ctrl.Status().Regressions,
		"available": s.ctrl.RegressionNames(),
	})
}

func (s *Server) handleSetTracker(c *fiber.Ctx) error {
	return s.swap(c, s.ctrl.SetTracker)
}

func (s *Server) handleSetRegression(c *fiber.Ctx) error {
	return s.swap(c, s.ctrl.SetRegression)
}

func (s *Server) handleAddRegression(c *fiber.Ctx) error {
	return s.swap(c, s.ctrl.AddRegression)
}

// swap applies a registry-backed change and reports the resulting status.
func (s *Server) swap(c *fiber.Ctx, apply func(string) error) error {
	name := c.Params("name")
	if err := apply(name); err != nil {
		var nf *registry.NotFoundError
		if errors.As(err, &nf) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":   err.Error(),
				"options": nf.Options,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Info("dashboard change", "path", c.Path(), "name", name)
	s.PublishStatus()
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handlePause(c *fiber.Ctx) error {
	s.ctrl.Pause()
	s.PublishStatus()
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleResume(c *fiber.Ctx) error {
	s.ctrl.Resume()
	s.PublishStatus()
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleSave(c *fiber.Ctx) error {
	if err := s.ctrl.SaveData(c.UserContext()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "saved"})
}

func (s *Server) handleClear(c *fiber.Ctx) error {
	if err := s.ctrl.ClearData(c.UserContext()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	s.PublishStatus()
	return c.JSON(fiber.Map{"status": "cleared"})
}

func (s *Server) handleOverlay(c *fiber.Ctx) error {
	show, err := parseSwitch(c.Params("on"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	s.ctrl.ShowPredictionPoints(show)
	return c.JSON(fiber.Map{"overlay": show})
}

// parseSwitch accepts on/off as well as anything strconv.ParseBool does.
func parseSwitch(v string) (bool, error) {
	switch v {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return strconv.ParseBool(v)
}
