package ratelimit

// Record is the quota state of one submitter.
type Record struct {
	// Window is the window Count refers to.
	Window uint64 `cramberry:"1"`
	// Count is the number of submissions seen in Window. It goes one past
	// the quota when the window was exceeded.
	Count uint32 `cramberry:"2"`
	// Strikes is the number of consecutive exceeded windows.
	Strikes     uint32 `cramberry:"3"`
	BannedUntil uint64 `cramberry:"4"`
	Banned      bool   `cramberry:"5"`
}

// IsBanned reports whether the record bans its submitter during window.
func (r Record) IsBanned(window uint64) bool {
	return r.Banned && window < r.BannedUntil
}

// consume counts one submission in window. exceeded is true when the quota
// of the window was already used up; banned is true when this submission
// started a ban.
func (r *Record) consume(cfg Config, window uint64) (exceeded, banned bool) {
	if r.Window != window {
		// A window within quota, or a gap of windows, clears the strikes.
		if r.Count <= cfg.Quota || window != r.Window+1 {
			r.Strikes = 0
		}
		r.Window = window
		r.Count = 0
	}
	if r.Count < cfg.Quota {
		r.Count++
		return false, false
	}

	// One strike per window.
	if r.Count == cfg.Quota {
		r.Count++
		r.Strikes++
		if r.Strikes >= cfg.BanThreshold {
			r.Banned = true
			r.BannedUntil = window + cfg.BanWindows
			r.Strikes = 0
			return true, true
		}
	}
	return true, false
}
