package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CatalogClient reads products from the product service
type CatalogClient struct {
	base
}

// NewCatalogClient creates a catalog client. nil logger disables logging.
func NewCatalogClient(baseURL string, timeout time.Duration, logger *zap.Logger) *CatalogClient {
	return &CatalogClient{base: newBase(baseURL, timeout, logger)}
}

// GetProduct fetches one product. Unknown ids return a 404 StatusError.
func (c *CatalogClient) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogClient.GetProduct")
	defer span.End()

	if id == "" {
		return nil, fmt.Errorf("product id is required")
	}

	var product models.Product
	_, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/v1/products/" + url.PathEscape(id),
	}, &product)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return &product, nil
}
