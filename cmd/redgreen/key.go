package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/deixis/redgreen/internal/kv"
)

func keyMain(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: redgreen key set [key] | redgreen key delete")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	switch args[0] {
	case "set":
		key := ""
		if len(args) > 1 {
			key = args[1]
		} else {
			fmt.Fprint(os.Stderr, "API key: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading key: %w", err)
			}
			key = line
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return errors.New("empty key")
		}
		if err := a.session.SetAPIKey(ctx, key); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Stored %s in %s\n", kv.APIKeySecret, a.cfg.StorePath(a.root))
	case "delete":
		if err := a.session.SetAPIKey(ctx, ""); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "API key deleted.")
	default:
		return fmt.Errorf("unknown key command %q", args[0])
	}
	return nil
}
