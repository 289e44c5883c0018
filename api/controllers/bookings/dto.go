package bookings

import (
	"time"

	"github.com/angelmondragon/livo-backend/pkg/db/models"
)

const dateLayout = "2006-01-02"

type initBookingRequest struct {
	RoomID     string `json:"room_id" validate:"required,uuid"`
	StartDate  string `json:"start_date" validate:"required,isodate"`
	EndDate    string `json:"end_date" validate:"required,isodate"`
	RoomsCount int    `json:"rooms_count" validate:"required,min=1"`
}

type addGuestsRequest struct {
	Guests []guestRequest `json:"guests" validate:"required,min=1,dive"`
}

type guestRequest struct {
	Name   string `json:"name" validate:"required,notblank,max=120"`
	Gender string `json:"gender" validate:"required,oneof=MALE FEMALE OTHER"`
	Age    int    `json:"age" validate:"min=0,max=150"`
}

// BookingResponse is the public view of a booking.
type BookingResponse struct {
	ID         string          `json:"id"`
	HotelID    string          `json:"hotel_id"`
	RoomID     string          `json:"room_id"`
	RoomsCount int             `json:"rooms_count"`
	StartDate  string          `json:"start_date"`
	EndDate    string          `json:"end_date"`
	Amount     string          `json:"amount"`
	Status     string          `json:"status"`
	Guests     []GuestResponse `json:"guests,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type GuestResponse struct {
	Name   string `json:"name"`
	Gender string `json:"gender"`
	Age    int    `json:"age"`
}

// ListResponse is a cursor page of the caller's bookings.
type ListResponse struct {
	Bookings   []BookingResponse `json:"bookings"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func toBookingResponse(b *models.Booking) BookingResponse {
	resp := BookingResponse{
		ID:         b.ID.String(),
		HotelID:    b.HotelID.String(),
		RoomID:     b.RoomID.String(),
		RoomsCount: b.RoomsCount,
		StartDate:  b.StartDate.Format(dateLayout),
		EndDate:    b.EndDate.Format(dateLayout),
		Amount:     b.Amount.StringFixed(2),
		Status:     string(b.Status),
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
	for _, guest := range b.Guests {
		resp.Guests = append(resp.Guests, GuestResponse{
			Name:   guest.Name,
			Gender: string(guest.Gender),
			Age:    guest.Age,
		})
	}
	return resp
}
