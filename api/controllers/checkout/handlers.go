package checkout

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cactilia/cactilia-backend/api/responses"
	"github.com/cactilia/cactilia-backend/api/validators"
	cartsvc "github.com/cactilia/cactilia-backend/internal/cart"
	checkoutsvc "github.com/cactilia/cactilia-backend/internal/checkout"
	pkgerrors "github.com/cactilia/cactilia-backend/pkg/errors"
	"github.com/cactilia/cactilia-backend/pkg/logger"
	"github.com/cactilia/cactilia-backend/pkg/types"
)

const maxSessionIDLen = 128

// SelectShippingRequest picks a quoted bundle for a checkout session. The cart and address
// are sent again so the bundle can be verified by recomputation.
type SelectShippingRequest struct {
	SessionID       string                    `json:"sessionId" validate:"required"`
	BundleID        string                    `json:"bundleId" validate:"required"`
	Items           []cartsvc.LineItemPayload `json:"items" validate:"dive"`
	Address         *cartsvc.AddressPayload   `json:"address"`
	ShippingAddress *cartsvc.AddressPayload   `json:"shippingAddress"`
}

// ShippingResponse is the stored selection plus the line the order will carry.
type ShippingResponse struct {
	Selection    *checkoutsvc.Selection `json:"selection"`
	ShippingLine types.ShippingLine     `json:"shippingLine"`
}

// SelectShipping stores the chosen bundle for the session.
func SelectShipping(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload SelectShippingRequest
		if err := validators.DecodeLenientJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := cartsvc.NormalizeItems(payload.Items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		address := cartsvc.AddressPayload{}
		if payload.Address != nil {
			address = *payload.Address
		} else if payload.ShippingAddress != nil {
			address = *payload.ShippingAddress
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithSessionID(ctx, payload.SessionID)
		}
		selection, err := svc.Select(ctx, checkoutsvc.SelectInput{
			SessionID: validators.SanitizeString(payload.SessionID, maxSessionIDLen),
			BundleID:  payload.BundleID,
			Items:     items,
			Address:   cartsvc.NormalizeAddress(address),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ShippingResponse{
			Selection:    selection,
			ShippingLine: selection.ShippingLine(),
		})
	}
}

// GetShipping returns the session's selection and order shipping line.
func GetShipping(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		sessionID := validators.SanitizeString(chi.URLParam(r, "sessionID"), maxSessionIDLen)
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithSessionID(ctx, sessionID)
		}
		selection, err := svc.Current(ctx, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, ShippingResponse{
			Selection:    selection,
			ShippingLine: selection.ShippingLine(),
		})
	}
}
