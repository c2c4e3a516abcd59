package governor

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Rate limit headers sent by the service.
const (
	HeaderLimitType      = "x-ratelimit-type"
	HeaderLimit          = "x-ratelimit-limit"
	HeaderRemaining      = "x-ratelimit-remaining"
	HeaderReset          = "x-ratelimit-reset"
	HeaderLimitBurst     = "x-ratelimit-limit-burst"
	HeaderLimitPerSecond = "x-ratelimit-limit-per-second"
)

// defaultResetWait is used when limit headers are present but carry no usable reset.
const defaultResetWait = 2 * time.Second

// LimitInfo is the normalized view of the rate limit headers.
type LimitInfo struct {
	LimitType string
	ResetAt   time.Time

	Limit      int
	Remaining  int
	BurstLimit int
	PerSecond  int
}

// ParseLimitHeaders extracts rate limit data from response headers. ok is false
// when the response carries no rate limit headers at all. ResetAt is never later
// than now+maxWait and never earlier than now.
func ParseLimitHeaders(h http.Header, now time.Time, maxWait time.Duration) (LimitInfo, bool) {
	if h == nil {
		return LimitInfo{}, false
	}
	if h.Get(HeaderLimit) == "" && h.Get(HeaderLimitType) == "" && h.Get(HeaderReset) == "" {
		return LimitInfo{}, false
	}

	info := LimitInfo{
		LimitType:  strings.TrimSpace(h.Get(HeaderLimitType)),
		Limit:      headerInt(h, HeaderLimit),
		Remaining:  headerInt(h, HeaderRemaining),
		BurstLimit: headerInt(h, HeaderLimitBurst),
		PerSecond:  headerInt(h, HeaderLimitPerSecond),
	}
	if info.LimitType == "" {
		info.LimitType = "default"
	}

	wait := defaultResetWait
	if parsed, ok := parseReset(h.Get(HeaderReset), now); ok {
		wait = parsed.Sub(now)
	}
	if wait < 0 {
		wait = 0
	}
	if maxWait > 0 && wait > maxWait {
		wait = maxWait
	}
	info.ResetAt = now.Add(wait)
	return info, true
}

// parseReset accepts RFC 3339 timestamps, epoch seconds or milliseconds, and
// relative seconds.
func parseReset(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, true
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		return time.Time{}, false
	}
	switch {
	case value >= 1e12:
		return time.UnixMilli(int64(value)), true
	case value >= 1e9:
		sec := int64(value)
		return time.Unix(sec, int64((value-float64(sec))*1e9)), true
	default:
		return now.Add(time.Duration(value * float64(time.Second))), true
	}
}

func headerInt(h http.Header, key string) int {
	value, err := strconv.Atoi(strings.TrimSpace(h.Get(key)))
	if err != nil {
		return 0
	}
	return value
}
