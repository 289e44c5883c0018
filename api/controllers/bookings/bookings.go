package bookings

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/livo-backend/api/middleware"
	"github.com/angelmondragon/livo-backend/api/responses"
	"github.com/angelmondragon/livo-backend/api/validators"
	internalbookings "github.com/angelmondragon/livo-backend/internal/bookings"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/logger"
	"github.com/angelmondragon/livo-backend/pkg/pagination"
)

// Init reserves inventory for the caller. The Idempotency-Key header is
// claimed by the booking service itself.
func Init(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key, err := validators.RequiredHeader(r, middleware.IdempotencyKeyHeader, 255)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req initBookingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := req.toInput(key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.InitBooking(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toBookingResponse(booking))
	}
}

// AddGuests replaces the guest list of a reserved booking.
func AddGuests(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := bookingIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req addGuestsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		guests := make([]internalbookings.GuestInput, 0, len(req.Guests))
		for _, guest := range req.Guests {
			gender, err := enums.ParseGender(guest.Gender)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid gender"))
				return
			}
			guests = append(guests, internalbookings.GuestInput{
				Name:   validators.SanitizeString(guest.Name, 120),
				Gender: gender,
				Age:    guest.Age,
			})
		}

		booking, err := svc.AddGuests(r.Context(), userID, bookingID, guests)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBookingResponse(booking))
	}
}

// Cancel cancels a confirmed booking and queues its refund.
func Cancel(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := bookingIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.CancelBooking(r.Context(), userID, bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBookingResponse(booking))
	}
}

func Detail(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := bookingIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.GetBooking(r.Context(), userID, bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBookingResponse(booking))
	}
}

// List returns the caller's bookings, newest first.
func List(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.QueryInt(r, "limit", validators.IntRange{Default: pagination.DefaultLimit, Min: 1, Max: pagination.MaxLimit})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		result, err := svc.GetMyBookings(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := ListResponse{
			Bookings:   make([]BookingResponse, 0, len(result.Bookings)),
			NextCursor: result.NextCursor,
		}
		for i := range result.Bookings {
			resp.Bookings = append(resp.Bookings, toBookingResponse(&result.Bookings[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

func (req initBookingRequest) toInput(key string) (internalbookings.InitBookingInput, error) {
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		return internalbookings.InitBookingInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid room id")
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return internalbookings.InitBookingInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid start date")
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return internalbookings.InitBookingInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid end date")
	}
	return internalbookings.InitBookingInput{
		RoomID:         roomID,
		StartDate:      start,
		EndDate:        end,
		RoomsCount:     req.RoomsCount,
		IdempotencyKey: key,
	}, nil
}

func callerID(r *http.Request) (uuid.UUID, error) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return p.UserID, nil
}

func bookingIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "bookingId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id")
	}
	return id, nil
}
