//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for pgedge-retailmart.
// Configuration is loaded from config files and CLI flags (no environment
// variables). CLI flags take precedence over config file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for pgedge-retailmart.
type Config struct {
	// Connection is the PostgreSQL connection string for the mart.
	Connection string `mapstructure:"connection"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// Init holds configuration for the init subcommand.
	Init InitConfig `mapstructure:"init"`

	// Run holds configuration for the run subcommand.
	Run RunConfig `mapstructure:"run"`

	// Features declares the optional derived columns of the ML view.
	Features FeatureConfig `mapstructure:"features"`

	// Customers lists the customers to process and their ERP field maps.
	Customers []CustomerConfig `mapstructure:"customers"`

	// Conversions maps delivery-side pack SKUs onto sales-side SKUs for
	// stockout inference (e.g. one crate of twelve).
	Conversions []ConversionRule `mapstructure:"conversions"`
}

// InitConfig holds configuration for mart initialization.
type InitConfig struct {
	// DropExisting drops existing schema before initialization.
	DropExisting bool `mapstructure:"drop_existing"`

	// Seed loads demo identity mappings after creating the schema, so a
	// demo run resolves out of the box.
	Seed bool `mapstructure:"seed"`
}

// RunConfig holds configuration for a pipeline run.
type RunConfig struct {
	// Source is the source adapter that supplies decoded raw records.
	Source string `mapstructure:"source"`

	// Customer restricts the run to a single customer id ("" runs all).
	Customer string `mapstructure:"customer"`

	// Seed makes the demo source deterministic when non-zero.
	Seed uint64 `mapstructure:"seed"`

	// Date is the target date (YYYY-MM-DD) for a single-day run.
	Date string `mapstructure:"date"`

	// From/To bound a backfill range (inclusive). When set, Date is
	// ignored and carry-forward state is reset at the start.
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`

	// Workers is the stockout-fold parallelism across (product, store)
	// pairs within one customer.
	Workers int `mapstructure:"workers"`

	// WarmupDays is the number of leading days per (product, store) for
	// which stockout inference is suppressed. The zero-starting-stock
	// assumption behind the warm-up is an approximation, not a measured
	// fact; revisit with real inventory data.
	WarmupDays int `mapstructure:"warmup_days"`

	// DenseCalendar fills every calendar day between the first and last
	// observed date per (product, store) with zero-quantity rows before
	// the stockout fold. Off by default: absent keys then emit no fact
	// row at all.
	DenseCalendar bool `mapstructure:"dense_calendar"`
}

// FeatureConfig declares optional derived columns of the ML feature
// view. All of them are deterministic functions of fact history only.
type FeatureConfig struct {
	// LagDays emits one lagged sales_qty column per entry.
	LagDays []int `mapstructure:"lag_days"`

	// RollingWindow emits a rolling mean of sales_qty over N days
	// (0 disables it).
	RollingWindow int `mapstructure:"rolling_window"`

	// Calendar emits day-of-week and month columns.
	Calendar bool `mapstructure:"calendar"`
}

// CustomerConfig describes one customer: its id, its ERP flavor and the
// per-source-type field maps (canonical field name -> source column).
type CustomerConfig struct {
	ID  string `mapstructure:"id"`
	ERP string `mapstructure:"erp"`

	// Fields maps source type -> canonical field -> source column name.
	Fields map[string]map[string]string `mapstructure:"fields"`
}

// ConversionRule maps one delivery-side SKU onto a sales-side SKU with a
// unit factor, per customer.
type ConversionRule struct {
	CustomerID            string `mapstructure:"customer_id"`
	NumberProductDelivery string `mapstructure:"number_product_delivery"`
	NumberProductSales    string `mapstructure:"number_product_sales"`
	Factor                int64  `mapstructure:"factor"`
}

// CosmosFields is the default field map for cosmos-style CSV extracts.
var CosmosFields = map[string]map[string]string{
	"sales": {
		"date": "Datum", "store": "Kunde", "product": "Artikel",
		"qty": "VK-Menge", "amount": "VK-Betrag",
	},
	"returns": {
		"date": "Datum", "store": "Kunde", "product": "Artikel",
		"qty": "RG-Menge",
	},
	"deliveries": {
		"date": "Datum", "store": "Kunde", "product": "Artikel",
		"qty": "Liefermenge", "batch": "Charge",
	},
	"products": {
		"product": "Artikel", "name": "Bezeichnung", "group": "Warengruppe",
		"price": "Preis", "moq": "Mindestbestellmenge",
	},
	"stores": {
		"store": "Kunde", "name": "Name", "street": "Strasse",
		"postal_code": "PLZ", "city": "Ort", "country": "Land", "state": "Bundesland",
	},
}

// GalaxyFields is the default field map for galaxy-style JSON extracts.
// Store addresses arrive as one multiline block parsed by the normalizer.
var GalaxyFields = map[string]map[string]string{
	"sales": {
		"date": "Datum", "store": "FilialNummer", "product": "ArtikelNummer",
		"qty": "VerkaufsMenge", "amount": "VerkaufsBetrag",
	},
	"returns": {
		"date": "Datum", "store": "FilialNummer", "product": "ArtikelNummer",
		"qty": "RetourenMenge",
	},
	"deliveries": {
		"date": "Datum", "store": "FilialNummer", "product": "ArtikelNummer",
		"qty": "LieferMenge",
	},
	"products": {
		"product": "ArtikelNummer", "name": "ArtikelName",
		"group": "ArtikelGruppe", "price": "ArtikelPreis", "moq": "MindestMenge",
	},
	"stores": {
		"store": "FilialNummer", "name": "FilialName",
		"address_multiline": "Anschrift",
	},
}

// DefaultConfig returns a Config with default values: three demo
// customers (two cosmos-style, one galaxy-style) matching the shipped
// demo source.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Run: RunConfig{
			Source:     "demo",
			Workers:    4,
			WarmupDays: 2,
		},
		Features: FeatureConfig{
			LagDays:       []int{1, 7},
			RollingWindow: 7,
			Calendar:      true,
		},
		Customers: []CustomerConfig{
			{ID: "1001", ERP: "cosmos", Fields: CosmosFields},
			{ID: "1002", ERP: "cosmos", Fields: CosmosFields},
			{ID: "1003", ERP: "galaxy", Fields: GalaxyFields},
		},
		Conversions: []ConversionRule{
			// Customer 1001 receives article 9001 as a crate of twelve 4711.
			{CustomerID: "1001", NumberProductDelivery: "9001", NumberProductSales: "4711", Factor: 12},
		},
	}
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./pgedge-retailmart.yaml
// 3. ~/.config/pgedge-retailmart/config.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("pgedge-retailmart")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pgedge-retailmart"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Customer returns the configuration for one customer id.
func (c *Config) Customer(id string) (CustomerConfig, error) {
	for _, cust := range c.Customers {
		if cust.ID == id {
			return cust, nil
		}
	}
	return CustomerConfig{}, fmt.Errorf("unknown customer: %s", id)
}

// ConversionsFor returns the pack-SKU conversion rules for one customer.
func (c *Config) ConversionsFor(customerID string) []ConversionRule {
	var out []ConversionRule
	for _, r := range c.Conversions {
		if r.CustomerID == customerID {
			out = append(out, r)
		}
	}
	return out
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Connection == "" {
		return fmt.Errorf("connection string is required")
	}
	return nil
}

// ValidateInit checks configuration required for the init command.
func (c *Config) ValidateInit() error {
	return c.Validate()
}

// ValidateRun checks configuration required for the run command.
func (c *Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Run.Source == "" {
		return fmt.Errorf("source adapter is required")
	}
	if c.Run.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.Run.WarmupDays < 0 {
		return fmt.Errorf("warmup_days must be non-negative")
	}
	for _, lag := range c.Features.LagDays {
		if lag != 1 && lag != 7 {
			return fmt.Errorf("unsupported lag_days value %d: the feature view stores lag_sales_1 and lag_sales_7", lag)
		}
	}
	if w := c.Features.RollingWindow; w != 0 && w != 7 {
		return fmt.Errorf("unsupported rolling_window %d: the feature view stores sales_avg_7", w)
	}
	if len(c.Customers) == 0 {
		return fmt.Errorf("at least one customer must be configured")
	}
	if c.Run.From != "" || c.Run.To != "" {
		from, err := time.Parse(time.DateOnly, c.Run.From)
		if err != nil {
			return fmt.Errorf("invalid from date: %s", c.Run.From)
		}
		to, err := time.Parse(time.DateOnly, c.Run.To)
		if err != nil {
			return fmt.Errorf("invalid to date: %s", c.Run.To)
		}
		if to.Before(from) {
			return fmt.Errorf("to date must not precede from date")
		}
	} else if c.Run.Date != "" {
		if _, err := time.Parse(time.DateOnly, c.Run.Date); err != nil {
			return fmt.Errorf("invalid date: %s", c.Run.Date)
		}
	}
	for _, r := range c.Conversions {
		if r.Factor <= 0 {
			return fmt.Errorf("conversion factor must be positive for customer %s product %s",
				r.CustomerID, r.NumberProductDelivery)
		}
	}
	return nil
}
