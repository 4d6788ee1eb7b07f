package dispatch

import (
	"strings"

	"github.com/m3rciful/ocipanel/core/engine/envelope"
)

// Predicate gates a registered action.
type Predicate func(*Event) bool

// ProfileKey is the extra-data entry that binds an envelope to an account and its chat user.
const ProfileKey = "account_profile"

type profileOwner struct {
	TelegramUserID int64 `json:"telegramUserId"`
}

var ownerKey = envelope.NewKey[profileOwner](ProfileKey)

// IsCallback matches button presses.
func IsCallback(ev *Event) bool { return ev.Kind == KindCallback }

// IsMessage matches text and document messages.
func IsMessage(ev *Event) bool { return ev.Kind == KindMessage }

// Resolved matches events whose reference code resolved to a live envelope.
func Resolved(ev *Event) bool { return ev.Resolved && !ev.Envelope.IsZero() }

// HasDocument matches messages carrying an attachment.
func HasDocument(ev *Event) bool { return ev.Document != nil }

// HasText matches messages with non-blank text.
func HasText(ev *Event) bool { return strings.TrimSpace(ev.Text) != "" }

// OwnedByProfile matches when the triggering user is the chat user bound to the
// envelope's account profile. Envelopes without a profile never match.
func OwnedByProfile(ev *Event) bool {
	if !Resolved(ev) {
		return false
	}
	owner, ok := envelope.Lookup(ev.Envelope.Data(), ownerKey)
	if !ok || owner.TelegramUserID == 0 {
		return false
	}
	return owner.TelegramUserID == ev.UserID
}

// OwnedBy matches when owner extracts a user id equal to the triggering user.
func OwnedBy(owner func(envelope.Data) (int64, bool)) Predicate {
	return func(ev *Event) bool {
		if !Resolved(ev) {
			return false
		}
		id, ok := owner(ev.Envelope.Data())
		return ok && id == ev.UserID
	}
}

// Not negates p.
func Not(p Predicate) Predicate {
	return func(ev *Event) bool { return !p(ev) }
}

// Callback is the usual guard set for a button action: a resolved press by the profile owner.
func Callback() []Predicate {
	return []Predicate{IsCallback, Resolved, OwnedByProfile}
}

// PublicCallback omits the ownership check, for menus not tied to an account.
func PublicCallback() []Predicate {
	return []Predicate{IsCallback, Resolved}
}
