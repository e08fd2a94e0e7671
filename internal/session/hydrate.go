package session

import (
	"context"
	"fmt"

	"github.com/deixis/redgreen/internal/kv"
	"github.com/deixis/redgreen/internal/state"
)

// PreferenceModelProvider is the preference key holding the selected
// model provider.
const PreferenceModelProvider = "selectedModelProvider"

// Hydrate builds the snapshot a session starts from: the persisted command
// (or fallbackCommand when none is stored), the current source and test
// files, the test file mappings, the selected model provider and whether
// an API key is available. keys decides the latter; nil reads the key
// from store only.
func Hydrate(ctx context.Context, store *kv.Store, keys KeyReader, fallbackCommand string) (state.Snapshot, error) {
	snap := state.Initial()
	if store == nil {
		snap.TestCommand = fallbackCommand
		if keys != nil {
			key, err := keys.Secret(ctx, kv.APIKeySecret)
			if err != nil {
				return snap, fmt.Errorf("loading API key: %w", err)
			}
			snap.IsAPIKeySet = key != ""
		}
		return snap, nil
	}
	if keys == nil {
		keys = store
	}

	command, err := store.CurrentTestCommand(ctx)
	if err != nil {
		return snap, fmt.Errorf("loading test command: %w", err)
	}
	if command == "" {
		command = fallbackCommand
	}
	snap.TestCommand = command

	if snap.SourceFilePath, err = store.CurrentSourceFile(ctx); err != nil {
		return snap, fmt.Errorf("loading source file: %w", err)
	}
	if snap.TestFilePath, err = store.CurrentTestFile(ctx); err != nil {
		return snap, fmt.Errorf("loading test file: %w", err)
	}
	if snap.TestMappings, err = store.TestFileMap(ctx); err != nil {
		return snap, fmt.Errorf("loading test mappings: %w", err)
	}

	var provider string
	ok, err := store.Preference(ctx, PreferenceModelProvider, &provider)
	if err != nil {
		return snap, fmt.Errorf("loading model provider: %w", err)
	}
	if ok && provider != "" {
		snap.SelectedModelProvider = provider
	}

	key, err := keys.Secret(ctx, kv.APIKeySecret)
	if err != nil {
		return snap, fmt.Errorf("loading API key: %w", err)
	}
	snap.IsAPIKeySet = key != ""
	return snap, nil
}
