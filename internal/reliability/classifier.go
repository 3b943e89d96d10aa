package reliability

import (
	"time"

	"github.com/gorilla/websocket"
)

// IsAbnormalCloseCode classifies websocket close codes that should trigger
// a reconnect. Normal and going-away closures are intentional shutdowns.
func IsAbnormalCloseCode(code int) bool {
	switch code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway:
		return false
	default:
		return true
	}
}

// LinearBackoff computes the delay before reconnect attempt n (1-based):
// n times base, capped. The schedule grows linearly so a full retry cycle
// stays within seconds instead of minutes.
func LinearBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 1 {
		return base
	}
	d := time.Duration(attempt) * base
	if cap > 0 && d > cap {
		return cap
	}
	return d
}
