package admin

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/livo-backend/api/middleware"
	"github.com/angelmondragon/livo-backend/api/responses"
	"github.com/angelmondragon/livo-backend/internal/inventory"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/logger"
)

type InventoryResponse struct {
	RoomID  string `json:"room_id,omitempty"`
	HotelID string `json:"hotel_id,omitempty"`
	Cells   int64  `json:"cells"`
}

// InitializeRoomInventory creates the room's cells across the booking horizon.
func InitializeRoomInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		roomID, err := uuidParam(r, "roomId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := svc.InitializeRoom(r.Context(), actor, roomID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, InventoryResponse{RoomID: roomID.String(), Cells: created})
	}
}

// DeleteRoomInventory drops a room's cells and expires its in-flight bookings.
func DeleteRoomInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		roomID, err := uuidParam(r, "roomId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deleted, err := svc.DeleteForRoom(r.Context(), actor, roomID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, InventoryResponse{RoomID: roomID.String(), Cells: deleted})
	}
}

// DeleteHotelInventory drops every cell of a hotel. Managers may only drop
// hotels they manage.
func DeleteHotelInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		hotelID, err := uuidParam(r, "hotelId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deleted, err := svc.DeleteForHotel(r.Context(), actor, hotelID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, InventoryResponse{HotelID: hotelID.String(), Cells: deleted})
	}
}

func actorFrom(r *http.Request) (inventory.Actor, error) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return inventory.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return inventory.Actor{UserID: p.UserID, Role: p.Role}, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}
