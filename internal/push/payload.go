package push

import (
	"encoding/json"

	"github.com/lumameet/presenced/internal/domain"
)

// Event names are fixed by the product's push protocol.
const (
	EventUserCheckedIn  = "user-checked-in"
	EventUserCheckedOut = "user-checked-out"
	EventForceCheckout  = "force-checkout"
	EventExpired        = "event-expired"

	cmdJoinEvent  = "join-event"
	cmdLeaveEvent = "leave-event"
)

// envelope is the wire frame for both directions of the push channel.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// UserCheckedIn announces a user entering the room's venue.
type UserCheckedIn struct {
	EventID string       `json:"eventId"`
	User    AttendeeData `json:"user"`
}

// UserCheckedOut announces a user leaving the room's venue.
type UserCheckedOut struct {
	EventID string `json:"eventId"`
	UserID  string `json:"userId"`
}

// ForceCheckout is the server-initiated termination of the presence session,
// carrying the reason text to show the user.
type ForceCheckout struct {
	EventID string `json:"eventId"`
	Message string `json:"message"`
}

// Expired announces that an event has ended.
type Expired struct {
	EventID string `json:"eventId"`
}

// AttendeeData is the backend's user payload on push events.
type AttendeeData struct {
	ID             string   `json:"_id"`
	Name           string   `json:"name"`
	Age            int      `json:"age"`
	Profession     string   `json:"profession"`
	Bio            string   `json:"bio"`
	ProfilePicture string   `json:"profilePicture"`
	Interests      []string `json:"interests"`
	ConvoStarter   string   `json:"convoStarter"`
}

// ToAttendee converts the wire payload to the domain type.
func (a AttendeeData) ToAttendee() domain.Attendee {
	return domain.Attendee{
		ID:           a.ID,
		Name:         a.Name,
		Age:          a.Age,
		Profession:   a.Profession,
		Bio:          a.Bio,
		PictureURL:   a.ProfilePicture,
		Interests:    a.Interests,
		ConvoStarter: a.ConvoStarter,
	}
}
