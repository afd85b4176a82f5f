package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"vehicle-info-bot/utils"
)

const (
	maxWarnings       = 5
	banDuration       = 5 * time.Minute
	cleanupInterval   = 5 * time.Minute
	inactiveThreshold = 10 * time.Minute
)

// AntiSpam enforces a minimum delay between commands per user. Users who keep
// ignoring the delay are banned for a while.
type AntiSpam struct {
	mu           sync.RWMutex
	lastCommand  map[int64]time.Time
	warningCount map[int64]int
	banUntil     map[int64]time.Time

	commandDelay time.Duration
	ownerID      int64
	now          func() time.Time

	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// NewAntiSpam starts the protection and its cleanup goroutine. Call Stop
// when done.
func NewAntiSpam(delay time.Duration, ownerID int64) *AntiSpam {
	sp := newAntiSpam(delay, ownerID, time.Now)
	sp.ticker = time.NewTicker(cleanupInterval)

	go func() {
		for {
			select {
			case <-sp.ticker.C:
				sp.cleanup()
			case <-sp.done:
				return
			}
		}
	}()

	log.WithField("delay", delay).Info("✅ Anti-spam protection initialized")
	return sp
}

func newAntiSpam(delay time.Duration, ownerID int64, now func() time.Time) *AntiSpam {
	return &AntiSpam{
		lastCommand:  make(map[int64]time.Time),
		warningCount: make(map[int64]int),
		banUntil:     make(map[int64]time.Time),
		commandDelay: delay,
		ownerID:      ownerID,
		now:          now,
		done:         make(chan struct{}),
	}
}

// Stop ends the cleanup goroutine.
func (sp *AntiSpam) Stop() {
	sp.once.Do(func() {
		if sp.ticker != nil {
			sp.ticker.Stop()
		}
		close(sp.done)
	})
}

func (sp *AntiSpam) cleanup() {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	now := sp.now()

	for userID, lastTime := range sp.lastCommand {
		if now.Sub(lastTime) > inactiveThreshold {
			delete(sp.lastCommand, userID)
			delete(sp.warningCount, userID)
		}
	}

	for userID, banTime := range sp.banUntil {
		if now.After(banTime) {
			delete(sp.banUntil, userID)
			log.WithField("user_id", userID).Info("🔓 User unbanned")
		}
	}
}

func isCommand(text string) bool {
	return strings.HasPrefix(text, "/")
}

func seconds(d time.Duration) int {
	return int(d.Seconds()) + 1
}

// Middleware rejects commands sent faster than the configured delay.
func (sp *AntiSpam) Middleware(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return next(c)
		}
		userID := sender.ID

		if sp.ownerID != 0 && userID == sp.ownerID {
			return next(c)
		}

		if banned, until := sp.isUserBanned(userID); banned {
			return c.Send(utils.EscapeMarkdown(fmt.Sprintf(
				"🚫 You are temporarily banned for spamming.\n\nWait %d more seconds.",
				seconds(until.Sub(sp.now())),
			)), telebot.ModeMarkdownV2)
		}

		if !isCommand(c.Text()) {
			return next(c)
		}

		allowed, wait := sp.allowCommand(userID)
		if !allowed {
			warnings := sp.addWarning(userID)

			if warnings >= maxWarnings {
				sp.banUser(userID, banDuration)
				log.WithField("user_id", userID).Warn("🚫 User banned for spamming")

				return c.Send(utils.EscapeMarkdown(
					"🚫 Banned!\n\nToo many commands in a row. You are blocked for 5 minutes.",
				), telebot.ModeMarkdownV2)
			}

			return c.Send(utils.EscapeMarkdown(fmt.Sprintf(
				"⏰ Slow down!\n\nWait %d seconds between commands.\nWarning: %d/%d",
				seconds(wait), warnings, maxWarnings,
			)), telebot.ModeMarkdownV2)
		}

		sp.resetWarnings(userID)
		sp.recordCommand(userID)
		return next(c)
	}
}

func (sp *AntiSpam) allowCommand(userID int64) (bool, time.Duration) {
	sp.mu.RLock()
	lastTime, exists := sp.lastCommand[userID]
	sp.mu.RUnlock()

	if !exists {
		return true, 0
	}

	elapsed := sp.now().Sub(lastTime)
	if elapsed < sp.commandDelay {
		return false, sp.commandDelay - elapsed
	}
	return true, 0
}

func (sp *AntiSpam) recordCommand(userID int64) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sp.lastCommand[userID] = sp.now()
}

func (sp *AntiSpam) addWarning(userID int64) int {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sp.warningCount[userID]++
	return sp.warningCount[userID]
}

func (sp *AntiSpam) resetWarnings(userID int64) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	delete(sp.warningCount, userID)
}

func (sp *AntiSpam) banUser(userID int64, d time.Duration) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sp.banUntil[userID] = sp.now().Add(d)
	sp.warningCount[userID] = 0
}

func (sp *AntiSpam) isUserBanned(userID int64) (bool, time.Time) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	banTime, exists := sp.banUntil[userID]
	if !exists || sp.now().After(banTime) {
		return false, time.Time{}
	}
	return true, banTime
}

// Reset forgets everything recorded about userID.
func (sp *AntiSpam) Reset(userID int64) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	delete(sp.lastCommand, userID)
	delete(sp.warningCount, userID)
	delete(sp.banUntil, userID)

	log.WithField("user_id", userID).Info("🔄 Reset spam protection")
}
