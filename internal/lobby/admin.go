// internal/lobby/admin.go
package lobby

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/models"
)

// banPeriods lists the units a ban duration may be given in, each with the most units
// that stay within maxBanYears.
var banPeriods = map[string]int{
	"SECOND": maxBanYears * 366 * 24 * 60 * 60,
	"MINUTE": maxBanYears * 366 * 24 * 60,
	"HOUR":   maxBanYears * 366 * 24,
	"DAY":    maxBanYears * 366,
	"WEEK":   maxBanYears * 52,
	"MONTH":  maxBanYears * 12,
	"YEAR":   maxBanYears,
}

const maxBanYears = 100

// banExpiry adds n periods to from. The period and its bound must already be validated.
func banExpiry(from time.Time, n int, period string) time.Time {
	switch period {
	case "MINUTE":
		return from.Add(time.Duration(n) * time.Minute)
	case "HOUR":
		return from.Add(time.Duration(n) * time.Hour)
	case "DAY":
		return from.AddDate(0, 0, n)
	case "WEEK":
		return from.AddDate(0, 0, 7*n)
	case "MONTH":
		return from.AddDate(0, n, 0)
	case "YEAR":
		return from.AddDate(n, 0, 0)
	}
	return from.Add(time.Duration(n) * time.Second)
}

type banRequest struct {
	reason   string
	duration int
	period   string
}

func parseBan(v interface{}) (*banRequest, error) {
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil, clientErr("Malformed ban")
	}
	reason, _ := raw["reason"].(string)
	duration, err := intArg(raw["duration"])
	if err != nil || duration <= 0 {
		return nil, clientErr("Ban duration must be a positive number")
	}
	period := "SECOND"
	if s, ok := raw["period"].(string); ok && s != "" {
		period = strings.ToUpper(s)
	}
	limit, ok := banPeriods[period]
	if !ok {
		return nil, clientErr("Period '%s' is not allowed!", period)
	}
	if duration > limit {
		return nil, clientErr("Ban duration may not exceed %d years", maxBanYears)
	}
	return &banRequest{reason: reason, duration: duration, period: period}, nil
}

func (c *LobbyConnection) commandAdmin(ctx context.Context, msg map[string]interface{}) error {
	p := c.Player()
	action, _ := msg["action"].(string)

	if !p.IsAdmin() {
		c.log().WithField("action", action).Warn("admin command from unprivileged player")
		return nil
	}

	switch action {
	case "closeFA":
		id, err := intArg(msg["user_id"])
		if err != nil {
			return clientErr("Invalid player id")
		}
		target, ok := c.svc.Players.Get(id)
		if !ok {
			return nil
		}
		if lc := target.LobbyConnection(); lc != nil {
			lc.Send(map[string]interface{}{
				"command": "notice",
				"style":   "info",
				"text": fmt.Sprintf("Your game was closed by an administrator (%s). Please refer to our rules for the lobby/game here %s.",
					p.Login, c.svc.Config.RuleLink),
			})
		}
		c.log().WithField("target_id", id).Info("administrative closeFA")
		return nil

	case "closelobby":
		id, err := intArg(msg["user_id"])
		if err != nil {
			return clientErr("Invalid player id")
		}
		var ban *banRequest
		if raw, ok := msg["ban"]; ok {
			if ban, err = parseBan(raw); err != nil {
				return err
			}
		}

		if target, ok := c.svc.Players.Get(id); ok {
			if lc := target.LobbyConnection(); lc != nil {
				lc.Kick(fmt.Sprintf("You were kicked from %s by an administrator (%s). Please refer to our rules for the lobby/game here %s.",
					c.svc.Config.ServerName, p.Login, c.svc.Config.RuleLink))
			}
		}
		c.log().WithField("target_id", id).Info("administrative closelobby")

		if ban == nil {
			return nil
		}
		expires := banExpiry(time.Now().UTC(), ban.duration, ban.period)
		inserted, err := c.svc.Store.InsertBan(ctx, &models.Ban{
			PlayerID:  id,
			AuthorID:  p.ID,
			Reason:    ban.reason,
			Level:     "GLOBAL",
			ExpiresAt: &expires,
		})
		if err != nil {
			return fmt.Errorf("ban player %d: %w", id, err)
		}
		if !inserted {
			c.log().WithField("target_id", id).Info("player already banned")
		}
		return nil

	case "broadcast":
		text, _ := msg["message"].(string)
		if text == "" {
			return nil
		}
		for _, other := range c.svc.Players.All() {
			if lc := other.LobbyConnection(); lc != nil {
				lc.SendWarning(text)
			}
		}
		c.log().Info("administrative broadcast")
		return nil
	}
	return clientErr("Unknown admin action %q", action)
}
