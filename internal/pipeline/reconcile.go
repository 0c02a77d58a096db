package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricing-cli/internal/collector"
	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/store"
)

// reconciler folds one collector batch into the canonical entity graph:
// restaurants dedup on their natural key, items on their menu identity,
// observations append without dedup so repeated facts accumulate.
type reconciler struct {
	store store.Store
}

func newReconciler(st store.Store) *reconciler {
	return &reconciler{store: st}
}

func (r *reconciler) apply(ctx context.Context, res *collector.Result) error {
	if res == nil {
		return nil
	}

	// Raw payloads first so observations can reference them by the
	// batch-local key.
	rawIDs := make(map[string]string, len(res.RawPayloads))
	for _, raw := range res.RawPayloads {
		ref := &model.RawPayloadRef{
			SourceType:  raw.SourceType,
			ContentType: raw.ContentType,
			StorageRef:  raw.StorageRef,
			Hash:        raw.Hash,
			Metadata:    raw.Metadata,
			CapturedAt:  raw.CapturedAt,
		}
		if err := r.store.CreateRawPayload(ctx, ref); err != nil {
			return eris.Wrap(err, "raw payload")
		}
		rawIDs[raw.Key] = ref.ID
	}

	restaurantIDs := make(map[string]string, len(res.Restaurants))
	for _, cr := range res.Restaurants {
		persisted, err := r.store.UpsertRestaurant(ctx, &model.CompetitorRestaurant{
			Name:          cr.Name,
			Address:       cr.Address,
			Lat:           cr.Lat,
			Lng:           cr.Lng,
			GooglePlaceID: cr.GooglePlaceID,
			YelpID:        cr.YelpID,
			WebsiteDomain: cr.WebsiteDomain,
		})
		if err != nil {
			return eris.Wrap(err, "restaurant")
		}
		restaurantIDs[cr.Key()] = persisted.ID
	}

	itemIDs := make(map[string]string, len(res.MenuItems))
	for _, mi := range res.MenuItems {
		restaurantID, ok := restaurantIDs[mi.RestaurantKey]
		if !ok {
			continue
		}
		persisted, err := r.store.GetOrCreateItem(ctx, &model.CompetitorItem{
			RestaurantID:   restaurantID,
			NormalizedName: mi.NormalizedName,
			Category:       mi.Category,
			Variant:        mi.Variant,
		})
		if err != nil {
			return eris.Wrap(err, "item")
		}
		itemIDs[mi.RestaurantKey+"|"+mi.NormalizedName] = persisted.ID
	}

	for _, po := range res.PriceObservations {
		itemID, ok := itemIDs[po.RestaurantKey+"|"+po.NormalizedName]
		if !ok {
			continue
		}
		if err := r.store.AppendPriceObservation(ctx, &model.PriceObservation{
			ItemID:               itemID,
			SourceType:           po.SourceType,
			SourceURL:            po.SourceURL,
			CapturedAt:           po.CapturedAt,
			ObservedPrice:        po.ObservedPrice,
			Currency:             po.Currency,
			IsDeliveryPrice:      po.IsDeliveryPrice,
			DeliveryPlatformName: po.DeliveryPlatformName,
			RawPayloadRefID:      rawIDs[po.RawPayloadKey],
		}); err != nil {
			return eris.Wrap(err, "price observation")
		}
	}

	for _, rev := range res.Reviews {
		restaurantID, ok := restaurantIDs[rev.RestaurantKey]
		if !ok {
			continue
		}
		if err := r.store.AppendReviewObservation(ctx, &model.ReviewObservation{
			RestaurantID:    restaurantID,
			SourceType:      rev.SourceType,
			CapturedAt:      rev.CapturedAt,
			Rating:          rev.Rating,
			Text:            rev.Text,
			RawPayloadRefID: rawIDs[rev.RawPayloadKey],
		}); err != nil {
			return eris.Wrap(err, "review observation")
		}
	}

	return nil
}
