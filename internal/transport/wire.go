package transport

import (
	"time"

	"github.com/lumameet/presenced/internal/domain"
)

// Wire shapes are owned by the backend; decoded here and converted to domain
// types at the boundary.

type wireLocation struct {
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

type wireEvent struct {
	ID       string       `json:"_id"`
	Title    string       `json:"title"`
	Location wireLocation `json:"location"`
	EndTime  string       `json:"endTime"`
}

func (w *wireEvent) toVenue() *domain.Venue {
	if w == nil {
		return nil
	}
	v := &domain.Venue{
		ID:      w.ID,
		Name:    w.Title,
		Address: w.Location.Address,
	}
	if v.Name == "" {
		v.Name = w.Location.Name
	}
	if w.Location.Lat != nil && w.Location.Lng != nil {
		v.Coordinate = &domain.GeoPoint{Lat: *w.Location.Lat, Lng: *w.Location.Lng}
	}
	if w.EndTime != "" {
		if t, err := time.Parse(time.RFC3339, w.EndTime); err == nil {
			v.EndsAt = &t
		}
	}
	return v
}

type wireUser struct {
	ID             string   `json:"_id"`
	Name           string   `json:"name"`
	Age            int      `json:"age"`
	Profession     string   `json:"profession"`
	Bio            string   `json:"bio"`
	ProfilePicture string   `json:"profilePicture"`
	Interests      []string `json:"interests"`
	ConvoStarter   string   `json:"convoStarter"`
}

func (w wireUser) toAttendee() domain.Attendee {
	return domain.Attendee{
		ID:           w.ID,
		Name:         w.Name,
		Age:          w.Age,
		Profession:   w.Profession,
		Bio:          w.Bio,
		PictureURL:   w.ProfilePicture,
		Interests:    w.Interests,
		ConvoStarter: w.ConvoStarter,
	}
}
