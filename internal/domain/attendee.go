package domain

// Attendee is another user currently checked in at the same venue.
type Attendee struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Age          int      `json:"age"`
	Profession   string   `json:"profession,omitempty"`
	Bio          string   `json:"bio,omitempty"`
	PictureURL   string   `json:"picture_url,omitempty"`
	Interests    []string `json:"interests"`
	ConvoStarter string   `json:"convo_starter,omitempty"`
}
