package config

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"

	"github.com/dealerdiff/dealerdiff/internal/dom"
	"github.com/dealerdiff/dealerdiff/internal/session"
	"github.com/dealerdiff/dealerdiff/internal/types"
)

var writerTypes = map[string]bool{
	"stdout":  true,
	"file":    true,
	"api":     true,
	"email":   true,
	"history": true,
}

// Validate checks the configuration once at startup. All problems are
// collected and returned as a single ConfigurationError.
func (c *Config) Validate() error {
	errs := []error{}
	add := func(format string, a ...any) {
		errs = append(errs, fmt.Errorf(format, a...))
	}

	if _, err := session.ParseDriverKind(c.Global.DriverKind); err != nil {
		errs = append(errs, err)
	}
	if c.Global.SettleSeconds < 0 {
		add("settle_seconds cannot be negative")
	}
	if c.Global.ClickDelayMS < 0 {
		add("click_delay_ms cannot be negative")
	}
	if c.Global.NavigationIntervalMS < 0 {
		add("navigation_interval_ms cannot be negative")
	}
	if c.Global.MaxRetries <= 0 {
		add("max_retries must be positive")
	}
	switch c.Global.WaitStrategy {
	case WaitStrategyFixed:
	case WaitStrategyPoll:
		if c.Global.WaitTimeoutSeconds <= 0 {
			add("wait_timeout_seconds must be positive for the poll wait strategy")
		}
	default:
		add("wait_strategy must be %q or %q, got %q", WaitStrategyFixed, WaitStrategyPoll, c.Global.WaitStrategy)
	}
	if c.Sources.Manufacturer == "" || c.Sources.Dealer == "" {
		add("both source names need to be set")
	}

	if !c.Navigation.Skip {
		if len(c.Navigation.Models)+len(c.Navigation.Categories) == 0 {
			add("navigation: at least one model or category is needed")
		}
		errs = append(errs, validateNavSite("navigation.manufacturer", c.Navigation.Manufacturer)...)
		errs = append(errs, validateNavSite("navigation.dealer", c.Navigation.Dealer)...)
	}

	seen := map[string]bool{}
	for i, v := range c.Vehicles {
		if v.Model == "" {
			add("vehicle %d: model cannot be empty", i)
			continue
		}
		if seen[v.Model] {
			add("vehicle %s: duplicate model", v.Model)
		}
		seen[v.Model] = true
		if v.Skip {
			continue
		}
		errs = append(errs, validateSite(v.Model+".manufacturer", v.Manufacturer, c.Report.ImageComparison)...)
		errs = append(errs, validateSite(v.Model+".dealer", v.Dealer, c.Report.ImageComparison)...)
	}

	for i, w := range c.Writers {
		if !writerTypes[w.Type] {
			add("writer %d: writer of type '%s' not implemented", i, w.Type)
		}
	}
	for _, w := range c.Writers {
		if w.Type == "history" && c.History.Path == "" {
			add("history writer configured but history.path is empty")
		}
	}

	if len(errs) > 0 {
		return types.ConfigurationError{Err: errors.Join(errs...)}
	}
	return nil
}

func validateURL(name, u string) error {
	parsed, err := url.Parse(u)
	if err != nil {
		return fmt.Errorf("%s: invalid url: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s: url %q must be absolute", name, u)
	}
	return nil
}

func validateLocators(name string, locators map[string]string) []error {
	errs := []error{}
	for _, field := range slices.Sorted(maps.Keys(locators)) {
		if err := dom.ValidateLocator(locators[field]); err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", name, field, err))
		}
	}
	return errs
}

func validateSite(name string, s Site, images bool) []error {
	errs := []error{}
	if err := validateURL(name+".url", s.URL); err != nil {
		errs = append(errs, err)
	}
	locators := map[string]string{
		"name_locator":  s.NameLocator,
		"price_locator": s.PriceLocator,
	}
	if s.ButtonsLocator != "" {
		locators["buttons_locator"] = s.ButtonsLocator
	}
	if images {
		if err := validateURL(name+".hero_image_url", s.HeroImageURL); err != nil {
			errs = append(errs, err)
		}
		locators["hero_image_locator"] = s.HeroImageLocator
	}
	return append(errs, validateLocators(name, locators)...)
}

func validateNavSite(name string, s NavSite) []error {
	errs := []error{}
	if err := validateURL(name+".url", s.URL); err != nil {
		errs = append(errs, err)
	}
	return append(errs, validateLocators(name, map[string]string{
		"main_menu_locator": s.MainMenuLocator,
		"sub_menu_locator":  s.SubMenuLocator,
		"name_locator":      s.NameLocator,
		"price_locator":     s.PriceLocator,
	})...)
}
