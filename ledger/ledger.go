// Package ledger owns credit balances, lookup accounting, referral linkage
// and redeem codes.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"vehicle-info-bot/database"
	"vehicle-info-bot/models"
	"vehicle-info-bot/utils"
)

// Errors returned by ledger operations.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidDenomination = errors.New("invalid code denomination")
	ErrCodeGeneration      = errors.New("failed to generate a unique code")
	ErrCodeNotFound        = errors.New("code not found")
	ErrCodeAlreadyClaimed  = errors.New("code already claimed")
)

// Shape of generated redeem codes and the number of collisions tolerated.
const (
	CodeLength   = 8
	CodeAttempts = 10
)

// Balance is a user's spendable credit. Privileged users are Unlimited.
type Balance struct {
	Credits   int64
	Unlimited bool
}

func (b Balance) String() string {
	if b.Unlimited {
		return "Unlimited"
	}
	return strconv.FormatInt(b.Credits, 10)
}

// BalanceOf returns the balance shown for u.
func BalanceOf(u models.User) Balance {
	if u.IsOwner {
		return Balance{Unlimited: true}
	}
	return Balance{Credits: u.Credits}
}

// Options configures a Ledger.
type Options struct {
	InitialCredits  int64
	CreditsPerCheck int64
	CodeValues      []int64
	OwnerID         int64

	// Now and GenerateCode default to time.Now and a random A-Z0-9 code.
	Now          func() time.Time
	GenerateCode func() (string, error)
}

// Ledger applies credit and code operations on top of the user and code tables.
type Ledger struct {
	users database.Table[models.User]
	codes database.Table[models.RedeemCode]
	opts  Options
	locks *keyedMutex
}

// New returns a Ledger over the given tables.
func New(users database.Table[models.User], codes database.Table[models.RedeemCode], opts Options) *Ledger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.GenerateCode == nil {
		opts.GenerateCode = func() (string, error) {
			return utils.GenerateCode(utils.CodeAlphabet, CodeLength)
		}
	}
	return &Ledger{
		users: users,
		codes: codes,
		opts:  opts,
		locks: newKeyedMutex(),
	}
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (l *Ledger) isOwner(id int64) bool {
	return l.opts.OwnerID != 0 && id == l.opts.OwnerID
}

func (l *Ledger) newUser(id int64) models.User {
	return models.User{
		Credits:      l.opts.InitialCredits,
		Referrals:    []int64{},
		JoinedDate:   l.opts.Now(),
		ClaimedCodes: []string{},
		IsOwner:      l.isOwner(id),
	}
}

// GetOrCreateUser returns the user's record, creating it with the starting
// balance on first contact. The owner flag is stamped on every call.
func (l *Ledger) GetOrCreateUser(ctx context.Context, id int64) (models.User, error) {
	created := false
	u, err := l.users.Update(ctx, userKey(id), func(cur models.User, exists bool) (models.User, error) {
		// Tables may retry the callback after losing a race.
		created = !exists
		if !exists {
			return l.newUser(id), nil
		}
		if l.isOwner(id) && !cur.IsOwner {
			cur.IsOwner = true
			return cur, nil
		}
		return cur, database.ErrSkipWrite
	})
	if err != nil {
		return models.User{}, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	if created {
		log.WithField("user_id", id).Info("✅ New user added")
	}
	return u, nil
}

// RegisterReferral behaves like GetOrCreateUser but, when the user is new,
// records referrerID as the referrer and lists the user on the referrer's
// record. Unknown referrers and self-referrals are ignored. It reports
// whether the user was created. No credits are granted.
func (l *Ledger) RegisterReferral(ctx context.Context, id, referrerID int64) (models.User, bool, error) {
	if referrerID == 0 || referrerID == id {
		u, err := l.GetOrCreateUser(ctx, id)
		return u, false, err
	}

	_, referrerExists, err := l.users.Get(ctx, userKey(referrerID))
	if err != nil {
		return models.User{}, false, fmt.Errorf("failed to load referrer %d: %w", referrerID, err)
	}

	created := false
	u, err := l.users.Update(ctx, userKey(id), func(cur models.User, exists bool) (models.User, error) {
		created = !exists
		if exists {
			if l.isOwner(id) && !cur.IsOwner {
				cur.IsOwner = true
				return cur, nil
			}
			return cur, database.ErrSkipWrite
		}
		fresh := l.newUser(id)
		if referrerExists {
			ref := referrerID
			fresh.ReferredBy = &ref
		}
		return fresh, nil
	})
	if err != nil {
		return models.User{}, false, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	if !created {
		return u, false, nil
	}

	fields := log.Fields{"user_id": id, "referrer_id": referrerID}
	if !referrerExists {
		log.WithFields(fields).Info("✅ New user added (unknown referrer ignored)")
		return u, true, nil
	}

	_, err = l.users.Update(ctx, userKey(referrerID), func(ref models.User, exists bool) (models.User, error) {
		if !exists {
			return ref, database.ErrSkipWrite
		}
		for _, r := range ref.Referrals {
			if r == id {
				return ref, database.ErrSkipWrite
			}
		}
		ref.Referrals = append(ref.Referrals, id)
		return ref, nil
	})
	if err != nil {
		log.WithError(err).WithFields(fields).Error("❌ Failed to record referral")
	} else {
		log.WithFields(fields).Info("✅ New referred user added")
	}
	return u, true, nil
}

// AdjustCredits adds delta to the user's balance without clamping. The
// owner's balance is never touched and always reports Unlimited.
func (l *Ledger) AdjustCredits(ctx context.Context, id int64, delta int64) (Balance, error) {
	u, err := l.users.Update(ctx, userKey(id), func(cur models.User, exists bool) (models.User, error) {
		if !exists {
			return cur, ErrUserNotFound
		}
		if cur.IsOwner {
			return cur, database.ErrSkipWrite
		}
		cur.Credits += delta
		return cur, nil
	})
	if err != nil {
		return Balance{}, err
	}
	return BalanceOf(u), nil
}

// ChargeLookup runs lookup on the user's behalf and charges one lookup only
// if it succeeds. Lookups for the same user are serialised so concurrent
// requests cannot both spend the last credit.
func (l *Ledger) ChargeLookup(ctx context.Context, id int64, lookup func(ctx context.Context) error) (Balance, error) {
	unlock := l.locks.Lock(userKey(id))
	defer unlock()

	u, err := l.GetOrCreateUser(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	if !u.IsOwner && u.Credits < l.opts.CreditsPerCheck {
		return BalanceOf(u), ErrInsufficientCredits
	}

	if err := lookup(ctx); err != nil {
		return BalanceOf(u), err
	}

	u, err = l.users.Update(ctx, userKey(id), func(cur models.User, exists bool) (models.User, error) {
		if !exists {
			return cur, ErrUserNotFound
		}
		if !cur.IsOwner {
			cur.Credits -= l.opts.CreditsPerCheck
		}
		cur.TotalChecks++
		return cur, nil
	})
	if err != nil {
		return Balance{}, fmt.Errorf("failed to charge user %d: %w", id, err)
	}
	return BalanceOf(u), nil
}

// UserIDs lists every known user id in ascending order.
func (l *Ledger) UserIDs(ctx context.Context) ([]int64, error) {
	keys, err := l.users.Keys(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(keys))
	for _, k := range keys {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			log.WithField("key", k).Warn("⚠️ Skipping non-numeric user key")
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// UserEntry pairs a user id with its record.
type UserEntry struct {
	ID   int64
	User models.User
}

// Users returns every user record ordered by id.
func (l *Ledger) Users(ctx context.Context) ([]UserEntry, error) {
	ids, err := l.UserIDs(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]UserEntry, 0, len(ids))
	for _, id := range ids {
		u, ok, err := l.users.Get(ctx, userKey(id))
		if err != nil {
			return nil, err
		}
		if ok {
			entries = append(entries, UserEntry{ID: id, User: u})
		}
	}
	return entries, nil
}
