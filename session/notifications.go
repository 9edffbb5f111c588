package session

import (
	"context"
	"errors"

	"github.com/yeremiapane/restaurant-qr/notification"
)

// NotificationSource is what WatchNotifications listens on, usually a
// *notification.Listener.
type NotificationSource interface {
	AddListener(fn func(notification.Notification)) (dispose func())
}

type sessionEvent struct {
	SessionID int64  `json:"sessionId"`
	Status    Status `json:"status"`
}

// WatchNotifications applies session_ended and session_paid pushes for the
// current session: an expired session is cleared, like a SESSION_EXPIRED
// validation; anything else marks it COMPLETED. This races with the
// reconciler's polling; the store's status guard makes the loser a no-op.
func WatchNotifications(src NotificationSource, store *Store) (dispose func()) {
	return src.AddListener(func(n notification.Notification) {
		if n.Type != notification.TypeSessionEnded && n.Type != notification.TypeSessionPaid {
			return
		}
		var ev sessionEvent
		if err := n.DecodeData(&ev); err != nil || ev.SessionID == 0 {
			store.log.WithField("type", n.Type).Warn("session event without session id")
			return
		}
		cur := store.Current()
		if cur == nil || cur.ID != ev.SessionID {
			return
		}

		ctx := context.Background()
		if n.Type == notification.TypeSessionEnded && ev.Status == StatusExpired {
			if err := store.ClearSession(ctx); err != nil {
				store.log.WithError(err).Warn("failed to clear expired session")
			}
			return
		}

		err := store.UpdateSessionStatus(ctx, StatusCompleted)
		if err != nil && !errors.Is(err, ErrStatusRegression) && !errors.Is(err, ErrNoSession) {
			store.log.WithError(err).Warn("failed to apply pushed session status")
		}
	})
}
