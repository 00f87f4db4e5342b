package auth

import (
	"context"
	"errors"
	"log/slog"
)

// Prompter asks the user for a credential. It returns an error when the user
// gives up.
type Prompter interface {
	Prompt(ctx context.Context) (string, error)
}

// Login drives a Gate until it unlocks.
type Login struct {
	Gate     *Gate
	Prompter Prompter

	// Account keys the credential store, normally the login URL.
	Account string
	// Store is consulted before prompting when non-nil.
	Store CredentialStore
	// Remember saves an interactively accepted credential in Store.
	Remember bool
	// Preset is tried first, e.g. a credential taken from the environment.
	Preset string
}

// Run tries the preset credential, then the stored one, then prompts until
// the gate accepts a credential or the prompter fails.
func (l *Login) Run(ctx context.Context) error {
	if l.Preset != "" {
		err := l.Gate.Submit(ctx, l.Preset)
		if err == nil {
			return nil
		}
		slog.Warn("preset credential not accepted", slog.String("error", err.Error()))
	}

	if l.Store != nil {
		stored, err := l.Store.Get(l.Account)
		if err != nil {
			slog.Debug("credential store unavailable", slog.String("error", err.Error()))
		}
		if stored != "" {
			err := l.Gate.Submit(ctx, stored)
			if err == nil {
				return nil
			}
			var authErr *Error
			if errors.As(err, &authErr) && authErr.Kind == KindRejected {
				if delErr := l.Store.Delete(l.Account); delErr != nil {
					slog.Warn("failed to forget rejected credential", slog.String("error", delErr.Error()))
				}
			}
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		credential, err := l.Prompter.Prompt(ctx)
		if err != nil {
			return err
		}

		if err := l.Gate.Submit(ctx, credential); err != nil {
			continue
		}

		if l.Remember && l.Store != nil {
			if err := l.Store.Set(l.Account, credential); err != nil {
				slog.Warn("failed to remember credential", slog.String("error", err.Error()))
			}
		}
		return nil
	}
}
