package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/pipeline"
	"github.com/sells-group/pricing-cli/internal/store"
)

var (
	runStoreID      string
	runItem         string
	runCategory     string
	runVariant      string
	runRadiusKm     float64
	runLat          float64
	runLng          float64
	runIntent       string
	runCurrentPrice float64
	runWorkspace    string
	runCuisine      []string
	runMinRating    float64
	runNoChains     bool
	runDelivery     bool
	runDemo         bool
	runRerunID      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a pricing query for a single menu item",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		input, err := resolveInput(cmd, st)
		if err != nil {
			return err
		}

		registry := buildRegistry(cfg.Collectors, runDemo)
		p := pipeline.New(cfg, st, registry)

		run, err := p.CreateQueryRun(ctx, input)
		if err != nil {
			return eris.Wrap(err, "create query run")
		}

		if err := p.ExecuteQueryRun(ctx, run.ID); err != nil {
			return eris.Wrap(err, "execute query run")
		}

		final, err := st.GetQueryRun(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "load run")
		}

		zap.L().Info("query run complete",
			zap.String("run_id", final.ID),
			zap.String("status", string(final.Status)),
		)

		out := runOutput{Run: final}
		if metric, err := st.GetLandscapeMetric(ctx, final.ID); err == nil {
			out.Landscape = metric
		} else if !eris.Is(err, store.ErrRunNotFound) {
			return eris.Wrap(err, "load landscape metric")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// runOutput is the JSON shape printed after a run.
type runOutput struct {
	Run       *model.QueryRun        `json:"run"`
	Landscape *model.LandscapeMetric `json:"landscape,omitempty"`
}

// resolveInput builds the query input from flags, or copies the input
// snapshot of a prior run when --rerun is set. A rerun always creates a
// fresh run; the original is never mutated.
func resolveInput(cmd *cobra.Command, st store.Store) (model.QueryInput, error) {
	if runRerunID != "" {
		prior, err := st.GetQueryRun(cmd.Context(), runRerunID)
		if err != nil {
			return model.QueryInput{}, eris.Wrapf(err, "rerun %s", runRerunID)
		}
		return prior.Input, nil
	}

	if runStoreID == "" || runItem == "" {
		return model.QueryInput{}, eris.Wrap(model.ErrInvalidInput, "--store-id and --item are required unless --rerun is set")
	}

	return model.QueryInput{
		WorkspaceID:       runWorkspace,
		StoreID:           runStoreID,
		TargetItem:        runItem,
		TargetCategory:    runCategory,
		TargetVariant:     runVariant,
		RadiusKm:          runRadiusKm,
		StoreLat:          runLat,
		StoreLng:          runLng,
		PositioningIntent: model.PositioningIntent(runIntent),
		StoreCurrentPrice: runCurrentPrice,
		Filters: model.QueryFilters{
			Cuisine:               runCuisine,
			ExcludeChains:         runNoChains,
			MinRating:             runMinRating,
			IncludeDeliveryPrices: runDelivery,
		},
	}, nil
}

func init() {
	runCmd.Flags().StringVar(&runStoreID, "store-id", "", "store the query is run for")
	runCmd.Flags().StringVar(&runItem, "item", "", "target menu item, e.g. \"Margherita Pizza\"")
	runCmd.Flags().StringVar(&runCategory, "category", "", "item category, e.g. pizza")
	runCmd.Flags().StringVar(&runVariant, "variant", "", "item variant, e.g. large")
	runCmd.Flags().Float64Var(&runRadiusKm, "radius", 5, "search radius in km")
	runCmd.Flags().Float64Var(&runLat, "lat", 0, "store latitude")
	runCmd.Flags().Float64Var(&runLng, "lng", 0, "store longitude")
	runCmd.Flags().StringVar(&runIntent, "intent", "Balanced", "positioning intent (Value, Balanced, Premium)")
	runCmd.Flags().Float64Var(&runCurrentPrice, "current-price", 0, "the store's current price for the item")
	runCmd.Flags().StringVar(&runWorkspace, "workspace", "", "workspace scope for the run")
	runCmd.Flags().StringSliceVar(&runCuisine, "cuisine", nil, "restrict competitors to these cuisines")
	runCmd.Flags().Float64Var(&runMinRating, "min-rating", 0, "minimum competitor rating")
	runCmd.Flags().BoolVar(&runNoChains, "exclude-chains", false, "exclude chain restaurants")
	runCmd.Flags().BoolVar(&runDelivery, "delivery", false, "include delivery platform prices")
	runCmd.Flags().BoolVar(&runDemo, "demo", false, "run against the built-in demo dataset")
	runCmd.Flags().StringVar(&runRerunID, "rerun", "", "re-execute the input of a prior run as a new run")
	rootCmd.AddCommand(runCmd)
}
