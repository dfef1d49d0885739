package handlers

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jjenkins/billtracker/internal/common"
	"github.com/jjenkins/billtracker/internal/model"
	"github.com/jjenkins/billtracker/internal/service"
	"github.com/jjenkins/billtracker/internal/store"
)

// RefreshOneBillHandler refreshes one bill on behalf of an external trigger.
// Form fields: BILLNO, YEARCODE and KEY. Replies in plain text.
func RefreshOneBillHandler(refresher *service.Refresher, apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !validKey(apiKey, c.FormValue("KEY")) {
			return c.Status(fiber.StatusUnauthorized).SendString("FAIL Bad key")
		}

		id, err := model.ParseDesignation(c.FormValue("BILLNO"), c.FormValue("YEARCODE"))
		if err != nil {
			return failText(c, err)
		}

		designation, err := refresher.RefreshOne(c.UserContext(), id)
		if err != nil {
			slog.ErrorContext(c.UserContext(), "refresh failed", "bill", id.Designation(), "year", id.Year, "err", err)
			return failText(c, err)
		}

		return c.SendString("OK Updated " + designation)
	}
}

// RefreshListingHandler refreshes every bill in the session listing and replies
// with one line per bill
func RefreshListingHandler(refresher *service.Refresher, apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !validKey(apiKey, c.FormValue("KEY")) {
			return c.Status(fiber.StatusUnauthorized).SendString("FAIL Bad key")
		}

		year := strings.TrimSpace(c.FormValue("YEARCODE"))
		if err := model.ValidateYearCode(year); err != nil {
			return failText(c, err)
		}

		result, err := refresher.RefreshListing(c.UserContext(), year)
		if err != nil {
			return failText(c, err)
		}

		var b strings.Builder
		for _, o := range result.Outcomes {
			if o.Err != nil {
				fmt.Fprintf(&b, "FAIL %s %s\n", o.ID.Designation(), o.Err)
			} else {
				fmt.Fprintf(&b, "OK %s\n", o.ID.Designation())
			}
		}
		fmt.Fprintf(&b, "%d refreshed, %d failed\n", result.Stats.Refreshed, result.Stats.Failed)
		return c.SendString(b.String())
	}
}

// BillsByUpdateDateHandler lists a session's designations, most recently updated first
func BillsByUpdateDateHandler(billStore *store.BillStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		year := strings.TrimSpace(c.Query("yearcode"))
		if err := model.ValidateYearCode(year); err != nil {
			return failText(c, err)
		}

		bills, err := billStore.ListByUpdateDate(c.UserContext(), year)
		if err != nil {
			return failText(c, err)
		}

		designations := make([]string, len(bills))
		for i := range bills {
			designations[i] = bills[i].Designation()
		}
		return c.SendString(strings.Join(designations, "\n"))
	}
}

// BillHandler returns one stored bill as JSON
func BillHandler(billStore *store.BillStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := model.ParseDesignation(c.Params("billno"), c.Params("yearcode"))
		if err != nil {
			return failJSON(c, err)
		}

		bill, err := billStore.Get(c.UserContext(), id)
		if err != nil {
			return failJSON(c, err)
		}
		if bill == nil {
			return failJSON(c, fmt.Errorf("%s: %w", id, common.ErrUnknownBill))
		}

		return c.JSON(bill.Status())
	}
}

// StatsHandler returns the most recently calculated system metrics
func StatsHandler(metrics *service.MetricsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		latest, err := metrics.GetLatestMetrics(c.UserContext())
		if err != nil {
			return failJSON(c, err)
		}
		return c.JSON(latest)
	}
}

func validKey(want, got string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// errorMessage hides internal failures from clients
func errorMessage(err error, status int) string {
	if status == fiber.StatusInternalServerError {
		return common.ErrInternalError.Error()
	}
	var validationErr *common.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Msg
	}
	return err.Error()
}

func failText(c *fiber.Ctx, err error) error {
	status := common.HTTPStatusFromError(err)
	if status == fiber.StatusInternalServerError {
		slog.ErrorContext(c.UserContext(), "request failed", "path", c.Path(), "err", err)
	}
	return c.Status(status).SendString("FAIL " + errorMessage(err, status))
}

func failJSON(c *fiber.Ctx, err error) error {
	status := common.HTTPStatusFromError(err)
	if status == fiber.StatusInternalServerError {
		slog.ErrorContext(c.UserContext(), "request failed", "path", c.Path(), "err", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": errorMessage(err, status)})
}
