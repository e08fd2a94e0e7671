package session

import (
	"context"
	"fmt"

	"github.com/deixis/redgreen/internal/state"
)

// Settings is a partial settings update. Nil fields are left unchanged.
type Settings struct {
	ModelProvider *string
	APIKey        *string // empty deletes the stored key
}

// SaveSettings persists the given settings, reflects them in the snapshot
// and returns the panel to the home page.
func (c *Controller) SaveSettings(ctx context.Context, s Settings) error {
	if c.persist == nil {
		return errNoPersistence
	}

	var p state.Patch
	if s.ModelProvider != nil {
		if err := c.persist.SetPreference(ctx, PreferenceModelProvider, *s.ModelProvider); err != nil {
			return fmt.Errorf("storing model provider: %w", err)
		}
		p.SelectedModelProvider = state.Set(*s.ModelProvider)
	}
	if s.APIKey != nil {
		if err := c.storeAPIKey(ctx, *s.APIKey); err != nil {
			return err
		}
		p.IsAPIKeySet = state.Set(c.apiKeySet(ctx, *s.APIKey))
	}
	p.CurrentPage = state.Set(state.PageHome)
	c.store.Update(p)
	c.log.Info().Bool("provider", s.ModelProvider != nil).Bool("api_key", s.APIKey != nil).Msg("settings saved")
	return nil
}

// NavigateTo switches the page clients show.
func (c *Controller) NavigateTo(page state.Page) error {
	switch page {
	case state.PageHome, state.PageSettings:
	default:
		return fmt.Errorf("unknown page %q", page)
	}
	c.store.Update(state.Patch{CurrentPage: &page})
	return nil
}

// Guidance returns the free-form context to send with an AI request. A
// non-empty text is remembered for later requests; an empty one is
// replaced by the remembered text.
func (c *Controller) Guidance(ctx context.Context, text string) string {
	if c.persist == nil {
		return text
	}
	if text != "" {
		if err := c.persist.SetCurrentContext(ctx, text); err != nil {
			c.log.Warn().Err(err).Msg("persisting context")
		}
		return text
	}
	saved, err := c.persist.CurrentContext(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("loading context")
		return ""
	}
	return saved
}
