package domain

import "time"

// RideView is the wire form of a ride shared by the HTTP API and realtime
// events. Field names follow what existing clients already read.
type RideView struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	UserName           string    `json:"userName"`
	UserPhone          string    `json:"userPhone"`
	UserEmail          string    `json:"userEmail,omitempty"`
	StartLocation      string    `json:"startLocation"`
	EndLocation        string    `json:"endLocation"`
	Distance           float64   `json:"distance"`
	Fare               float64   `json:"fare"`
	RideType           string    `json:"rideType,omitempty"`
	Passengers         int       `json:"passengers"`
	RideDate           string    `json:"rideDate"`
	RideTime           string    `json:"rideTime"`
	Claimed            bool      `json:"claimed"`
	ClaimedBy          string    `json:"claimedBy,omitempty"`
	ClaimedDriverName  string    `json:"claimedDriverName,omitempty"`
	ClaimedDriverPhone string    `json:"claimedDriverPhone,omitempty"`
	ClaimedDriverEmail string    `json:"claimedDriverEmail,omitempty"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// View converts r to its wire form.
func (r *Ride) View() RideView {
	v := RideView{
		ID:            r.ID,
		UserID:        r.Requester.ID,
		UserName:      r.Requester.Name,
		UserPhone:     r.Requester.Phone,
		UserEmail:     r.Requester.Email,
		StartLocation: r.StartLocation,
		EndLocation:   r.EndLocation,
		Distance:      r.DistanceMiles,
		Fare:          r.Fare,
		RideType:      r.RideType,
		Passengers:    r.Passengers,
		RideDate:      r.RideDate,
		RideTime:      r.RideTime,
		Claimed:       r.Claimed(),
		Status:        string(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.Claim != nil {
		v.ClaimedBy = r.Claim.DriverID
		v.ClaimedDriverName = r.Claim.DriverName
		v.ClaimedDriverPhone = r.Claim.DriverPhone
		v.ClaimedDriverEmail = r.Claim.DriverEmail
	}
	return v
}

// RideViews converts a list of rides.
func RideViews(rides []*Ride) []RideView {
	out := make([]RideView, 0, len(rides))
	for _, r := range rides {
		out = append(out, r.View())
	}
	return out
}
