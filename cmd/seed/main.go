// Command seed loads a catalog definition file into the backend. It is meant
// for bootstrapping a fresh project or a local database.
//
// The input is YAML:
//
//	categories:
//	  - name: Pain Relief
//	    slug: pain-relief
//	    products:
//	      - name: Ibuprofen 400mg
//	        slug: ibuprofen-400
//	        price: 6.50
//	        requires_prescription: false
//	        stock_quantity: 120
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pharmaverte/storefront/internal/app/domain/catalog"
	"github.com/pharmaverte/storefront/internal/app/storage"
	"github.com/pharmaverte/storefront/internal/app/storage/postgres"
	"github.com/pharmaverte/storefront/internal/app/storage/supabasestore"
	"github.com/pharmaverte/storefront/internal/config"
	"github.com/pharmaverte/storefront/pkg/logger"
	"github.com/pharmaverte/storefront/supabase"
)

type seedFile struct {
	Categories []seedCategory `yaml:"categories"`
}

type seedCategory struct {
	Name        string        `yaml:"name"`
	Slug        string        `yaml:"slug"`
	Description string        `yaml:"description"`
	Products    []seedProduct `yaml:"products"`
}

type seedProduct struct {
	Name                 string  `yaml:"name"`
	Slug                 string  `yaml:"slug"`
	Description          string  `yaml:"description"`
	Price                float64 `yaml:"price"`
	RequiresPrescription bool    `yaml:"requires_prescription"`
	StockQuantity        int     `yaml:"stock_quantity"`
	LowStockThreshold    int     `yaml:"low_stock_threshold"`
	ImageURL             string  `yaml:"image_url"`
}

func main() {
	var file string
	flag.StringVar(&file, "file", "seed.yaml", "catalog definition file")
	flag.Parse()

	log := logger.NewDefault("seed")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		log.WithError(err).Error("failed to read seed file")
		os.Exit(1)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		log.WithError(err).Error("failed to parse seed file")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to open storage backend")
		os.Exit(1)
	}

	total := 0
	for _, sc := range seed.Categories {
		created, err := store.CreateCategory(ctx, catalog.Category{
			Name:        sc.Name,
			Slug:        sc.Slug,
			Description: sc.Description,
		})
		if err != nil {
			log.WithError(err).WithField("category", sc.Name).Error("failed to create category")
			os.Exit(1)
		}
		log.WithField("category", created.Name).Info("category created")

		for _, sp := range sc.Products {
			_, err := store.CreateProduct(ctx, catalog.Product{
				CategoryID:           created.ID,
				Name:                 sp.Name,
				Slug:                 sp.Slug,
				Description:          sp.Description,
				Price:                sp.Price,
				RequiresPrescription: sp.RequiresPrescription,
				StockQuantity:        sp.StockQuantity,
				LowStockThreshold:    sp.LowStockThreshold,
				ImageURL:             sp.ImageURL,
			})
			if err != nil {
				log.WithError(err).WithField("product", sp.Name).Error("failed to create product")
				os.Exit(1)
			}
			total++
		}
	}
	log.WithField("categories", len(seed.Categories)).WithField("products", total).
		Info("seeding complete")
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage.CatalogStore, error) {
	switch cfg.Backend {
	case config.BackendSupabase:
		client, err := supabase.New(supabase.Config{URL: cfg.Supabase.URL, APIKey: cfg.Supabase.AnonKey})
		if err != nil {
			return nil, err
		}
		return supabasestore.New(client, log), nil
	case config.BackendPostgres:
		return postgres.New(ctx, cfg.Postgres.DSN)
	default:
		return nil, fmt.Errorf("seeding needs the supabase or postgres backend, got %q", cfg.Backend)
	}
}
