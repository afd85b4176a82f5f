package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"vehicle-info-bot/database"
	"vehicle-info-bot/models"
)

var errCodeTaken = errors.New("code taken")

// ClaimResult describes a successful claim.
type ClaimResult struct {
	Code    string
	Value   int64
	Balance Balance
}

func (l *Ledger) validDenomination(value int64) bool {
	for _, v := range l.opts.CodeValues {
		if v == value {
			return true
		}
	}
	return false
}

// IssueCode creates a new unclaimed code worth value credits. Codes are
// inserted only under keys that are not yet taken; after CodeAttempts
// collisions it gives up with ErrCodeGeneration.
func (l *Ledger) IssueCode(ctx context.Context, creatorID int64, value int64) (string, models.RedeemCode, error) {
	if !l.validDenomination(value) {
		return "", models.RedeemCode{}, ErrInvalidDenomination
	}

	for attempt := 0; attempt < CodeAttempts; attempt++ {
		code, err := l.opts.GenerateCode()
		if err != nil {
			return "", models.RedeemCode{}, fmt.Errorf("%w: %v", ErrCodeGeneration, err)
		}

		rc, err := l.codes.Update(ctx, code, func(cur models.RedeemCode, exists bool) (models.RedeemCode, error) {
			if exists {
				return cur, errCodeTaken
			}
			return models.RedeemCode{
				Value:     value,
				CreatedBy: userKey(creatorID),
				CreatedAt: l.opts.Now(),
			}, nil
		})
		if errors.Is(err, errCodeTaken) {
			log.WithField("attempt", attempt+1).Debug("Redeem code collision, retrying")
			continue
		}
		if err != nil {
			return "", models.RedeemCode{}, fmt.Errorf("failed to store code: %w", err)
		}

		log.WithFields(log.Fields{"code": code, "value": value, "creator_id": creatorID}).Info("✅ Redeem code created")
		return code, rc, nil
	}

	return "", models.RedeemCode{}, ErrCodeGeneration
}

// ClaimCode consumes code for the user and credits its value. The owner's
// balance is left alone but the code is still consumed.
func (l *Ledger) ClaimCode(ctx context.Context, id int64, code string) (ClaimResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	if _, ok, err := l.codes.Get(ctx, code); err != nil {
		return ClaimResult{}, fmt.Errorf("failed to load code: %w", err)
	} else if !ok {
		return ClaimResult{}, ErrCodeNotFound
	}

	if _, err := l.GetOrCreateUser(ctx, id); err != nil {
		return ClaimResult{}, err
	}

	claimer := userKey(id)
	rc, err := l.codes.Update(ctx, code, func(cur models.RedeemCode, exists bool) (models.RedeemCode, error) {
		if !exists {
			return cur, ErrCodeNotFound
		}
		if cur.IsClaimed() {
			return cur, ErrCodeAlreadyClaimed
		}
		now := l.opts.Now()
		cur.ClaimedBy = &claimer
		cur.ClaimedAt = &now
		return cur, nil
	})
	if err != nil {
		return ClaimResult{}, err
	}

	u, err := l.users.Update(ctx, claimer, func(cur models.User, exists bool) (models.User, error) {
		if !exists {
			return cur, ErrUserNotFound
		}
		if !cur.IsOwner {
			cur.Credits += rc.Value
		}
		if !cur.HasClaimed(code) {
			cur.ClaimedCodes = append(cur.ClaimedCodes, code)
		}
		return cur, nil
	})
	if err != nil {
		fields := log.Fields{"user_id": id, "code": code}
		log.WithError(err).WithFields(fields).Error("❌ Failed to credit claimed code")
		l.releaseClaim(ctx, code, claimer, fields)
		return ClaimResult{}, fmt.Errorf("failed to credit user %d: %w", id, err)
	}

	log.WithFields(log.Fields{"user_id": id, "code": code, "value": rc.Value}).Info("✅ Redeem code claimed")
	return ClaimResult{Code: code, Value: rc.Value, Balance: BalanceOf(u)}, nil
}

// releaseClaim returns code to the unclaimed state if claimer still holds it.
func (l *Ledger) releaseClaim(ctx context.Context, code, claimer string, fields log.Fields) {
	_, err := l.codes.Update(ctx, code, func(cur models.RedeemCode, exists bool) (models.RedeemCode, error) {
		if !exists || cur.ClaimedBy == nil || *cur.ClaimedBy != claimer {
			return cur, database.ErrSkipWrite
		}
		cur.ClaimedBy = nil
		cur.ClaimedAt = nil
		return cur, nil
	})
	if err != nil {
		log.WithError(err).WithFields(fields).Error("❌ Failed to release claimed code")
		return
	}
	log.WithFields(fields).Warn("⚠️ Claim released after credit failure")
}

// Stats summarises the ledger.
type Stats struct {
	Users         int
	TotalChecks   int64
	OpenCredits   int64 // sum of non-owner balances
	CodesIssued   int
	CodesClaimed  int
	CreditsIssued int64 // face value of all codes
}

// Stats scans both tables and returns their summary.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	var s Stats

	users, err := l.Users(ctx)
	if err != nil {
		return s, err
	}
	s.Users = len(users)
	for _, e := range users {
		s.TotalChecks += e.User.TotalChecks
		if !e.User.IsOwner {
			s.OpenCredits += e.User.Credits
		}
	}

	keys, err := l.codes.Keys(ctx)
	if err != nil {
		return s, err
	}
	for _, k := range keys {
		rc, ok, err := l.codes.Get(ctx, k)
		if err != nil {
			return s, err
		}
		if !ok {
			continue
		}
		s.CodesIssued++
		s.CreditsIssued += rc.Value
		if rc.IsClaimed() {
			s.CodesClaimed++
		}
	}
	return s, nil
}
