package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/cryptowallet/internal/domain"
)

const (
	defaultFeedTimeout = 10 * time.Second
	apiKeyHeader       = "X-CoinAPI-Key"
	assetsPath         = "/v1/assets"
)

// FeedResponse is the envelope returned for every feed call that produced an HTTP response.
// Data is only meaningful when StatusCode is http.StatusOK; Message carries the error text otherwise.
type FeedResponse[T any] struct {
	Data       T
	StatusCode int
	Message    string
}

// OK reports whether the feed answered with status 200.
func (r FeedResponse[T]) OK() bool {
	return r.StatusCode == http.StatusOK
}

// PriceFeed is the market-data source consumed by the price cache.
type PriceFeed interface {
	// Assets returns the tradable part of the full catalog.
	Assets(ctx context.Context) (FeedResponse[[]domain.Asset], error)
	// AssetByID returns the first tradable record for id, nil Data if there is none.
	AssetByID(ctx context.Context, id string) (FeedResponse[*domain.Asset], error)
}

type CoinAPIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewCoinAPIClient creates a client for the CoinAPI REST endpoint at baseURL.
// A zero timeout falls back to the default.
func NewCoinAPIClient(baseURL, apiKey string, timeout time.Duration) *CoinAPIClient {
	if timeout <= 0 {
		timeout = defaultFeedTimeout
	}
	return &CoinAPIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// assetRecord mirrors one element of the catalog JSON array.
type assetRecord struct {
	AssetID      string  `json:"asset_id"`
	Name         string  `json:"name"`
	TypeIsCrypto int     `json:"type_is_crypto"`
	PriceUSD     float64 `json:"price_usd"`
	DataStart    string  `json:"data_start"`
	DataEnd      string  `json:"data_end"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Assets fetches the whole catalog.
func (c *CoinAPIClient) Assets(ctx context.Context) (FeedResponse[[]domain.Asset], error) {
	status, records, message, err := c.get(ctx, assetsPath)
	if err != nil {
		return FeedResponse[[]domain.Asset]{}, err
	}
	if status != http.StatusOK {
		return FeedResponse[[]domain.Asset]{StatusCode: status, Message: message}, nil
	}

	return FeedResponse[[]domain.Asset]{Data: tradable(records), StatusCode: status}, nil
}

// AssetByID fetches the catalog filtered to a single identifier.
func (c *CoinAPIClient) AssetByID(ctx context.Context, id string) (FeedResponse[*domain.Asset], error) {
	status, records, message, err := c.get(ctx, assetsPath+"/"+url.PathEscape(id))
	if err != nil {
		return FeedResponse[*domain.Asset]{}, err
	}
	if status != http.StatusOK {
		return FeedResponse[*domain.Asset]{StatusCode: status, Message: message}, nil
	}

	assets := tradable(records)
	if len(assets) == 0 {
		return FeedResponse[*domain.Asset]{StatusCode: status}, nil
	}
	asset := assets[0]
	return FeedResponse[*domain.Asset]{Data: &asset, StatusCode: status}, nil
}

func (c *CoinAPIClient) get(ctx context.Context, path string) (int, []assetRecord, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, "", errors.Wrap(err, "failed to create HTTP request")
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, "", errors.Wrap(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, "", errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, errorMessage(resp.StatusCode, body), nil
	}

	var records []assetRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return 0, nil, "", errors.Wrap(err, "failed to unmarshal assets")
	}

	return resp.StatusCode, records, "", nil
}

func errorMessage(status int, body []byte) string {
	var e errorBody
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return fmt.Sprintf("price feed returned status %d", status)
}

func tradable(records []assetRecord) []domain.Asset {
	assets := make([]domain.Asset, 0, len(records))
	for _, r := range records {
		asset := domain.Asset{
			ID:        r.AssetID,
			Name:      r.Name,
			IsCrypto:  r.TypeIsCrypto == 1,
			PriceUSD:  decimal.NewFromFloat(r.PriceUSD),
			DataStart: r.DataStart,
			DataEnd:   r.DataEnd,
		}
		if !asset.Tradable() {
			continue
		}
		assets = append(assets, asset)
	}
	return assets
}
