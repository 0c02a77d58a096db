package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/normalize"
)

// WebsiteTarget is one competitor storefront menu page to scan,
// configured by the operator.
type WebsiteTarget struct {
	Name    string  `yaml:"name" mapstructure:"name"`
	Address string  `yaml:"address" mapstructure:"address"`
	MenuURL string  `yaml:"menu_url" mapstructure:"menu_url"`
	Lat     float64 `yaml:"lat" mapstructure:"lat"`
	Lng     float64 `yaml:"lng" mapstructure:"lng"`
}

// WebsiteConfig configures the storefront website collector.
type WebsiteConfig struct {
	Targets []WebsiteTarget `yaml:"targets" mapstructure:"targets"`
	Timeout time.Duration   `yaml:"timeout" mapstructure:"timeout"`
}

// Website scans configured competitor menu pages for prices next to the
// target item's tokens. The most reliable source: an exact in-store
// price straight from the storefront.
type Website struct {
	cfg  WebsiteConfig
	http *http.Client
}

// NewWebsite creates the storefront website collector.
func NewWebsite(cfg WebsiteConfig) *Website {
	return &Website{cfg: cfg, http: newHTTPClient(cfg.Timeout)}
}

func (w *Website) Name() string    { return "website" }
func (w *Website) Version() string { return "1.1.0" }

// priceRe matches "$12", "$12.50", "12.50 USD" style fragments.
var priceRe = regexp.MustCompile(`\$\s*(\d{1,3}(?:\.\d{2})?)|(\d{1,3}\.\d{2})\s*USD`)

// Collect fetches each configured menu page and extracts prices from
// lines mentioning the target item. Returns an empty result when no
// targets are configured. A page that fails to load fails the run: the
// operator asked for that storefront explicitly.
func (w *Website) Collect(ctx context.Context, query model.QueryInput) (*Result, error) {
	if len(w.cfg.Targets) == 0 {
		zap.L().Debug("collector: website has no configured targets, skipping")
		return &Result{}, nil
	}

	now := time.Now().UTC()
	normalized := normalize.Normalize(query.TargetItem)
	targetTokens := normalize.Tokenize(query.TargetItem)
	result := &Result{}

	for _, target := range w.cfg.Targets {
		if query.Filters.ExcludeChains && IsChain(target.Name) {
			continue
		}
		if (target.Lat != 0 || target.Lng != 0) && !WithinRadius(query, target.Lat, target.Lng) {
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.MenuURL, nil)
		if err != nil {
			return nil, eris.Wrapf(err, "website: create request for %s", target.MenuURL)
		}
		body, statusCode, err := retryDo(ctx, w.http, nil, req)
		if err != nil {
			return nil, eris.Wrapf(err, "website: fetch %s", target.MenuURL)
		}
		if statusCode != http.StatusOK {
			return nil, eris.Wrapf(ErrSourceUnavailable, "website: fetch %s (%d)", target.MenuURL, statusCode)
		}

		payloadKey := "website-" + target.Name
		hash := sha256.Sum256(body)
		result.RawPayloads = append(result.RawPayloads, RawPayload{
			Key:         payloadKey,
			SourceType:  model.SourceWebsite,
			ContentType: "text/html",
			StorageRef:  target.MenuURL,
			Hash:        hex.EncodeToString(hash[:]),
			Metadata:    map[string]any{"bytes": len(body)},
			CapturedAt:  now,
		})

		price, found := extractPrice(string(body), targetTokens)
		if !found {
			zap.L().Debug("collector: website found no price for target",
				zap.String("site", target.Name),
				zap.String("item", normalized),
			)
			continue
		}

		restaurant := Restaurant{
			Name:          target.Name,
			Address:       target.Address,
			Lat:           target.Lat,
			Lng:           target.Lng,
			WebsiteDomain: domainOf(target.MenuURL),
		}
		result.Restaurants = append(result.Restaurants, restaurant)
		result.MenuItems = append(result.MenuItems, MenuItem{
			RestaurantKey:  restaurant.Key(),
			NormalizedName: normalized,
			Category:       query.TargetCategory,
			Variant:        query.TargetVariant,
		})
		result.PriceObservations = append(result.PriceObservations, PriceObservation{
			RestaurantKey:  restaurant.Key(),
			NormalizedName: normalized,
			SourceType:     model.SourceWebsite,
			SourceURL:      target.MenuURL,
			CapturedAt:     now,
			ObservedPrice:  price,
			Currency:       "USD",
			RawPayloadKey:  payloadKey,
		})
	}

	zap.L().Info("collector: website collected",
		zap.Int("targets", len(w.cfg.Targets)),
		zap.Int("observations", len(result.PriceObservations)),
	)
	return result, nil
}

// extractPrice scans the page line by line for one mentioning every
// target token alongside a price fragment. First hit wins; menu pages
// list the canonical price before any upsell variants.
func extractPrice(page string, targetTokens []string) (float64, bool) {
	if len(targetTokens) == 0 {
		return 0, false
	}
	for _, line := range strings.Split(page, "\n") {
		lower := strings.ToLower(line)
		all := true
		for _, tok := range targetTokens {
			if !strings.Contains(lower, tok) {
				all = false
				break
			}
		}
		if !all {
			continue
		}
		m := priceRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil || price <= 0 {
			continue
		}
		return price, true
	}
	return 0, false
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
