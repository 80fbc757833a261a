// internal/lobby/policy.go
package lobby

import (
	"context"
	"errors"
	"fmt"

	"github.com/jason-s-yu/lobbyd/internal/database"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/policy"
	"github.com/sirupsen/logrus"
)

const fraudBanReason = "Auto-banned because of fraudulent login attempt"

// CheckPolicyConformity asks the policy server whether this login may proceed. Any
// verdict other than honest, or a failure to get one, aborts the connection and returns
// false. A fraudulent verdict also bans the player; if the player does not exist the
// error is a fatal ClientError.
func (c *LobbyConnection) CheckPolicyConformity(ctx context.Context, playerID int, uidHash string, session int64) (bool, error) {
	log := c.svc.Logger.WithFields(logrus.Fields{"player_id": playerID, "address": c.Address})

	verdict, err := c.svc.Policy.Verify(ctx, playerID, uidHash, session)
	if err != nil {
		log.WithError(err).Warn("policy server unavailable, refusing login")
		c.Abort("policy check failed")
		return false, nil
	}

	switch verdict {
	case policy.VerdictHonest:
		return true, nil

	case policy.VerdictFraudulent:
		log.Warn("fraudulent login attempt")
		defer c.Abort("fraudulent login")
		exists, err := c.svc.Store.PlayerExists(ctx, playerID)
		if err != nil {
			return false, fmt.Errorf("look up player %d: %w", playerID, err)
		}
		if !exists {
			return false, &ClientError{Message: "Login failed", Fatal: true}
		}
		_, err = c.svc.Store.InsertBan(ctx, &models.Ban{
			PlayerID: playerID,
			AuthorID: playerID,
			Reason:   fraudBanReason,
			Level:    "GLOBAL",
		})
		if errors.Is(err, database.ErrPlayerNotFound) {
			return false, &ClientError{Message: "Login failed", Fatal: true}
		}
		if err != nil {
			return false, fmt.Errorf("auto-ban player %d: %w", playerID, err)
		}
		return false, nil
	}

	log.WithField("verdict", verdict).Info("login refused by policy")
	c.Abort("policy verdict " + verdict)
	return false, nil
}
