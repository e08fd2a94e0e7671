package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/deixis/redgreen/internal/kv"
	"github.com/deixis/redgreen/internal/state"
)

var errNoPersistence = errors.New("no persistent store configured")

// SelectFiles records the source and test file the session works on.
// Empty paths are left unchanged.
func (c *Controller) SelectFiles(ctx context.Context, source, test string) error {
	var p state.Patch
	if source != "" {
		p.SourceFilePath = &source
	}
	if test != "" {
		p.TestFilePath = &test
	}
	c.store.Update(p)

	if c.persist == nil {
		return nil
	}
	if source != "" {
		if err := c.persist.SetCurrentSourceFile(ctx, source); err != nil {
			return fmt.Errorf("persisting source file: %w", err)
		}
	}
	if test != "" {
		if err := c.persist.SetCurrentTestFile(ctx, test); err != nil {
			return fmt.Errorf("persisting test file: %w", err)
		}
	}
	return nil
}

// ClearSelection forgets the current source and test file.
func (c *Controller) ClearSelection(ctx context.Context) error {
	var none string
	c.store.Update(state.Patch{SourceFilePath: &none, TestFilePath: &none})

	if c.persist == nil {
		return nil
	}
	if err := c.persist.RemoveCurrentSourceFile(ctx); err != nil {
		return fmt.Errorf("removing source file: %w", err)
	}
	if err := c.persist.RemoveCurrentTestFile(ctx); err != nil {
		return fmt.Errorf("removing test file: %w", err)
	}
	return nil
}

// MapTestFile records that source is covered by test.
func (c *Controller) MapTestFile(ctx context.Context, source, test string) error {
	if source == "" || test == "" {
		return errors.New("source and test paths are required")
	}
	if c.persist != nil {
		if err := c.persist.UpdateTestFileMap(ctx, source, test); err != nil {
			return fmt.Errorf("persisting mapping: %w", err)
		}
	}
	return c.refreshMappings(ctx, func(m map[string]string) { m[source] = test })
}

// UnmapTestFile forgets the mapping for source. Unknown sources are ignored.
func (c *Controller) UnmapTestFile(ctx context.Context, source string) error {
	if c.persist != nil {
		if err := c.persist.RemoveTestFileMap(ctx, source); err != nil {
			return fmt.Errorf("removing mapping: %w", err)
		}
	}
	return c.refreshMappings(ctx, func(m map[string]string) { delete(m, source) })
}

// refreshMappings reloads mappings from persistence when available, or
// edits the in-memory copy otherwise.
func (c *Controller) refreshMappings(ctx context.Context, edit func(map[string]string)) error {
	var m map[string]string
	if c.persist != nil {
		var err error
		if m, err = c.persist.TestFileMap(ctx); err != nil {
			return fmt.Errorf("loading mappings: %w", err)
		}
	} else {
		m = c.store.Current().TestMappings
		edit(m)
	}
	c.store.Update(state.Patch{TestMappings: m})
	return nil
}

// SetAPIKey stores the agent credential. An empty key deletes it.
func (c *Controller) SetAPIKey(ctx context.Context, key string) error {
	if c.persist == nil {
		return errNoPersistence
	}
	if err := c.storeAPIKey(ctx, key); err != nil {
		return err
	}
	c.store.Update(state.Patch{IsAPIKeySet: state.Set(c.apiKeySet(ctx, key))})
	return nil
}

func (c *Controller) storeAPIKey(ctx context.Context, key string) error {
	var err error
	if key == "" {
		err = c.persist.DeleteSecret(ctx, kv.APIKeySecret)
	} else {
		err = c.persist.SetSecret(ctx, kv.APIKeySecret, key)
	}
	if err != nil {
		return fmt.Errorf("storing API key: %w", err)
	}
	return nil
}

// apiKeySet reports whether a key is available after stored was saved.
// With a KeyReader the answer comes from it, so an environment fallback
// still counts once the stored key is deleted.
func (c *Controller) apiKeySet(ctx context.Context, stored string) bool {
	if c.keys == nil {
		return stored != ""
	}
	v, err := c.keys.Secret(ctx, kv.APIKeySecret)
	if err != nil {
		c.log.Warn().Err(err).Msg("checking API key")
		return stored != ""
	}
	return v != ""
}
