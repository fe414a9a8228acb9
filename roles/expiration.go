package roles

import (
	"errors"
	"fmt"
	"time"
)

// Expiration is unix seconds on the ledger; 0 is Permanent.
type Expiration int64

// Permanent never expires.
const Permanent Expiration = 0

// ExpirationLayout renders absolute expirations as GMT wall-clock time.
const ExpirationLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// PermanentLabel is rendered in place of a date for Permanent.
const PermanentLabel = "Permanent"

var ErrInvalidExpiration = errors.New("roles: invalid expiration")

// ExpiresAt converts t to a ledger expiration, truncated to the second.
func ExpiresAt(t time.Time) Expiration { return Expiration(t.Unix()) }

func (e Expiration) IsPermanent() bool { return e == Permanent }

// Time returns the instant, or the zero time for Permanent.
func (e Expiration) Time() time.Time {
	if e.IsPermanent() {
		return time.Time{}
	}
	return time.Unix(int64(e), 0).UTC()
}

// IsExpired reports expiration < now at second resolution. An expiration
// equal to now is still live.
func (e Expiration) IsExpired(now time.Time) bool {
	return !e.IsPermanent() && int64(e) < now.Unix()
}

func (e Expiration) String() string {
	if e.IsPermanent() {
		return PermanentLabel
	}
	return e.Time().Format(ExpirationLayout)
}

// ExpirationPolicy is the caller's intent for a grant.
type ExpirationPolicy struct {
	Permanent bool
	At        time.Time
	// Retroactive allows At to be in the past, recording an already expired
	// assignment.
	Retroactive bool
}

// Forever grants without expiration.
func Forever() ExpirationPolicy { return ExpirationPolicy{Permanent: true} }

// Until grants until t, which must not be in the past.
func Until(t time.Time) ExpirationPolicy { return ExpirationPolicy{At: t} }

// RetroactiveUntil records an assignment that may already be expired.
func RetroactiveUntil(t time.Time) ExpirationPolicy {
	return ExpirationPolicy{At: t, Retroactive: true}
}

// Resolve validates the policy against now and returns the ledger value.
func (p ExpirationPolicy) Resolve(now time.Time) (Expiration, error) {
	if p.Permanent {
		if !p.At.IsZero() {
			return 0, fmt.Errorf("%w: permanent grant with a date", ErrInvalidExpiration)
		}
		return Permanent, nil
	}
	if p.At.IsZero() {
		return 0, fmt.Errorf("%w: no date and not permanent", ErrInvalidExpiration)
	}
	if p.At.Unix() <= 0 {
		return 0, fmt.Errorf("%w: %s is not after the epoch", ErrInvalidExpiration, p.At.UTC().Format(time.RFC3339))
	}
	e := ExpiresAt(p.At)
	if e.IsExpired(now) && !p.Retroactive {
		return 0, fmt.Errorf("%w: %s is in the past", ErrInvalidExpiration, e)
	}
	return e, nil
}
