package shipping

import (
	"context"
	"net/http"

	"github.com/cactilia/cactilia-backend/api/responses"
	"github.com/cactilia/cactilia-backend/api/validators"
	shippingsvc "github.com/cactilia/cactilia-backend/internal/shipping"
	pkgerrors "github.com/cactilia/cactilia-backend/pkg/errors"
	"github.com/cactilia/cactilia-backend/pkg/logger"
)

const retryMessage = "unable to calculate shipping, please retry"

// Quote returns every shipping bundle for the posted cart and address, cheapest first.
func Quote(svc shippingsvc.Service, currency string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		var payload QuoteRequest
		if err := validators.DecodeLenientJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		exhaustive, err := validators.ParseQueryBool(r, "exhaustive", payload.Exhaustive)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Exhaustive = exhaustive

		input, err := payload.toQuoteInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Quote(r.Context(), input)
		if err != nil {
			writeShippingError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newQuoteResponse(quote, currency))
	}
}

// Groups returns the free-shipping-first grouping of the posted cart.
func Groups(svc shippingsvc.Service, currency string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		var payload QuoteRequest
		if err := validators.DecodeLenientJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toGroupInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Group(r.Context(), input)
		if err != nil {
			writeShippingError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newGroupsResponse(result, currency))
	}
}

func writeShippingError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if pkgerrors.As(err) == nil {
		err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, retryMessage)
	}
	responses.WriteError(ctx, logg, w, err)
}
