package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
)

type inventoryResponse struct {
	Data []inventorydomain.ItemView `json:"data"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPRefresher re-fetches a store's inventory over the REST API.
type HTTPRefresher struct {
	httpClient *resty.Client
	storeID    string
	onSnapshot func([]inventorydomain.ItemView)
}

func NewHTTPRefresher(baseURL, token, storeID string, onSnapshot func([]inventorydomain.ItemView)) *HTTPRefresher {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", token)).
		SetHeader("Accept", "application/json").
		SetTimeout(15 * time.Second)

	return &HTTPRefresher{
		httpClient: restyClient,
		storeID:    storeID,
		onSnapshot: onSnapshot,
	}
}

func (r *HTTPRefresher) Refresh(ctx context.Context) error {
	result := new(inventoryResponse)
	apiErr := new(apiError)

	resp, err := r.httpClient.R().
		SetContext(ctx).
		SetPathParam("storeId", r.storeID).
		SetResult(result).
		SetError(apiErr).
		Get("/api/stores/{storeId}/inventory")
	if err != nil {
		return fmt.Errorf("refresh inventory: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("refresh inventory: status=%d, type=%s, message=%s", resp.StatusCode(), apiErr.Error.Type, apiErr.Error.Message)
	}

	if r.onSnapshot != nil {
		r.onSnapshot(result.Data)
	}
	return nil
}
