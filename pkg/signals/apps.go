package signals

import (
	"context"
	"time"

	"github.com/govsignal/scout/pkg/config"
)

// OpportunityQuery narrows an opportunity search. Optional fields are
// omitted from the request when empty.
type OpportunityQuery struct {
	SearchQuery string
	Types       []string
	BuyerIDs    []string
	PageSize    int
	SortField   string
}

// OpportunitySearch runs a keyword search over procurement signals.
func (c *Client) OpportunitySearch(ctx context.Context, q OpportunityQuery) (any, error) {
	params := map[string]any{
		"search_query": q.SearchQuery,
		"page_size":    q.PageSize,
		"sort_field":   q.SortField,
	}
	if len(q.Types) > 0 {
		params["types"] = q.Types
	}
	if len(q.BuyerIDs) > 0 {
		params["buyer_ids"] = q.BuyerIDs
	}
	return c.callSync(ctx, config.AppOpportunitySearch, params)
}

// BuyerQuery narrows a buyer directory search.
type BuyerQuery struct {
	Query      string
	BuyerTypes []string
	States     []string
	PageSize   int
}

// BuyerSearch finds public-sector buyers by keyword, type, or state.
func (c *Client) BuyerSearch(ctx context.Context, q BuyerQuery) (any, error) {
	params := map[string]any{"page_size": q.PageSize}
	if q.Query != "" {
		params["query"] = q.Query
	}
	if len(q.BuyerTypes) > 0 {
		params["buyer_types"] = q.BuyerTypes
	}
	if len(q.States) > 0 {
		params["states"] = q.States
	}
	return c.callSync(ctx, config.AppBuyerSearch, params)
}

// BuyerProfile fetches the provider's profile for one buyer.
func (c *Client) BuyerProfile(ctx context.Context, buyerID string) (any, error) {
	return c.callSync(ctx, config.AppBuyerProfile, map[string]any{"buyer_id": buyerID})
}

// BuyerContacts lists known contacts at a buyer.
func (c *Client) BuyerContacts(ctx context.Context, buyerID string, pageSize int) (any, error) {
	return c.callSync(ctx, config.AppBuyerContacts, map[string]any{
		"buyer_id":  buyerID,
		"page_size": pageSize,
	})
}

// BuyerChat asks the provider's research assistant about a buyer. Chat
// runs long provider-side, so it uses the async endpoint rather than
// holding a sync connection open.
func (c *Client) BuyerChat(ctx context.Context, buyerID, question string, pollInterval, maxWait time.Duration) (any, error) {
	return c.callAsync(ctx, config.AppBuyerChat, map[string]any{
		"buyer_id": buyerID,
		"question": question,
	}, pollInterval, maxWait)
}
