package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/store"
)

type seedVariant struct {
	ID              string   `json:"id"`
	ProductID       string   `json:"product_id"`
	SKU             string   `json:"sku"`
	Name            string   `json:"name"`
	PriceCents      int      `json:"price_cents"`
	PromoPriceCents *int     `json:"promo_price_cents"`
	ImageURL        string   `json:"image_url"`
	Attributes      []string `json:"attributes"`
	Quantity        int      `json:"quantity"`
}

// Seed loads variants and their opening stock from a JSON array file. Variants that
// already exist are left alone, so seeding is safe on every start.
func Seed(ctx context.Context, s store.Store, path string, log *zap.Logger) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	var vs []seedVariant
	if err := json.Unmarshal(b, &vs); err != nil {
		return fmt.Errorf("seed %s: %w", path, err)
	}

	created := 0
	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, v := range vs {
			if v.ID == "" || v.Quantity < 0 {
				return fmt.Errorf("seed %s: variant %q is invalid", path, v.SKU)
			}
			_, err := tx.GetVariant(ctx, v.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if err := tx.CreateVariant(ctx, domain.Variant{
				ID: v.ID, ProductID: v.ProductID, SKU: v.SKU, Name: v.Name,
				PriceCents: v.PriceCents, PromoPriceCents: v.PromoPriceCents,
				ImageURL: v.ImageURL, Attributes: v.Attributes,
			}, v.Quantity); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("catalog seeded", zap.String("file", path), zap.Int("created", created), zap.Int("total", len(vs)))
	return nil
}
