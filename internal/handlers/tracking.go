package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jjenkins/billtracker/internal/common"
	"github.com/jjenkins/billtracker/internal/model"
	"github.com/jjenkins/billtracker/internal/service"
)

type trackRequest struct {
	BillNo   string `json:"billno" form:"billno"`
	YearCode string `json:"yearcode" form:"yearcode"`
}

// TrackHandler adds one or more comma separated bills to the caller's list
func TrackHandler(tracker *service.Tracker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req trackRequest
		if err := c.BodyParser(&req); err != nil {
			return failJSON(c, &common.ValidationError{Field: "body", Msg: err.Error()})
		}

		ids, err := tracker.Track(c.UserContext(), currentUser(c), req.BillNo, req.YearCode)
		if err != nil {
			return failJSON(c, err)
		}

		tracking := make([]string, len(ids))
		for i, id := range ids {
			tracking[i] = id.Designation()
		}
		return c.JSON(fiber.Map{"tracking": tracking})
	}
}

// UntrackHandler removes a bill from the caller's list
func UntrackHandler(tracker *service.Tracker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := model.ParseDesignation(c.Params("billno"), c.Params("yearcode"))
		if err != nil {
			return failJSON(c, err)
		}

		if err := tracker.Untrack(c.UserContext(), currentUser(c), id); err != nil {
			return failJSON(c, err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DashboardHandler lists the caller's bills with what changed since their last
// view, then marks them as seen
func DashboardHandler(tracker *service.Tracker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		username := currentUser(c)

		lastCheck, err := tracker.LastCheck(ctx, username)
		if err != nil {
			return failJSON(c, err)
		}

		res := dashboardResponse{FirstCheck: !lastCheck.Valid, Bills: []model.TrackedBillStatus{}}
		if lastCheck.Valid {
			res.LastCheck = &lastCheck.Time
		}

		rows, err := tracker.Dashboard(ctx, username)
		if errors.Is(err, common.ErrNotTracking) {
			res.Message = common.ErrNotTracking.Error()
			return c.JSON(res)
		}
		if err != nil {
			return failJSON(c, err)
		}

		for i := range rows {
			res.Bills = append(res.Bills, model.TrackedBillStatus{
				BillStatus: rows[i].Bill.Status(),
				Activity:   rows[i].Activity,
			})
		}
		return c.JSON(res)
	}
}

type dashboardResponse struct {
	Bills      []model.TrackedBillStatus `json:"bills"`
	FirstCheck bool                      `json:"first_check"`
	LastCheck  *time.Time                `json:"last_check,omitempty"`
	Message    string                    `json:"message,omitempty"`
}
