package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/vaultkeeper/internal/client/client"
)

func (a *App) requireLogin() error {
	if !a.isLoggedIn() {
		return client.ErrNotLoggedIn
	}
	return nil
}

// afterAuthError drops local state when the server no longer accepts the
// session.
func (a *App) afterAuthError(err error) error {
	if errors.Is(err, client.ErrUnauthorized) {
		a.forget()
	}
	return err
}

func (a *App) Sessions(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	list, err := a.client.ListSessions(ctx)
	if err != nil {
		return a.afterAuthError(err)
	}

	for _, s := range list {
		marker := " "
		if s.Current {
			marker = "*"
		}
		fmt.Fprintf(a.out, "%s %s  expires %s  %s  %s\n", marker,
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
			s.ExpiresAt.Local().Format("15:04"),
			orDash(s.IPAddress), orDash(s.ClientLabel))
	}
	return nil
}

func (a *App) LogoutAll(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	n, err := a.client.LogoutAll(ctx)
	a.forget()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Ended %d session(s)\n", n)
	return nil
}

// ChangePassword rotates the password. The server ends every session, so the
// user has to log in again afterwards.
func (a *App) ChangePassword(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}

	current, err := getPassword("Current password", a.out)
	if err != nil {
		return err
	}
	defer wipe(current)

	next, err := getNewPassword(a.out)
	if err != nil {
		return err
	}
	defer wipe(next)

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	if err := a.client.ChangePassword(ctx, current, next); err != nil {
		return err
	}
	a.forget()
	fmt.Fprintln(a.out, "Password changed. Please log in again.")
	return nil
}

func (a *App) NewRecoveryKey(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}

	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return err
	}
	defer wipe(password)

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	key, err := a.client.RegenerateRecoveryKey(ctx, password)
	if err != nil {
		return a.afterAuthError(err)
	}
	fmt.Fprintln(a.out, "New recovery key (the old one no longer works):")
	fmt.Fprintln(a.out, "  "+key)
	return nil
}

func (a *App) DeleteAccount(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}

	confirm, err := getSimpleText(a.reader, "Type the username to confirm deletion", a.out)
	if err != nil {
		return err
	}
	if confirm != a.userName {
		fmt.Fprintln(a.out, "Cancelled")
		return nil
	}

	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return err
	}
	defer wipe(password)

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	if err := a.client.DeleteAccount(ctx, password); err != nil {
		return a.afterAuthError(err)
	}
	a.forget()
	fmt.Fprintln(a.out, "Account deleted")
	return nil
}

// SecondFactor handles "mfa enable|disable|codes|regen".
func (a *App) SecondFactor(ctx context.Context, args []string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: mfa enable|disable|codes|regen")
		return nil
	}

	switch args[0] {
	case "enable":
		return a.enableSecondFactor(ctx)
	case "disable":
		code, err := getSimpleText(a.reader, "Enter authenticator or backup code", a.out)
		if err != nil {
			return err
		}
		ctx, cancel := a.callCtx(ctx)
		defer cancel()
		if err := a.client.DisableSecondFactor(ctx, code); err != nil {
			return a.afterAuthError(err)
		}
		fmt.Fprintln(a.out, "Second factor disabled")
	case "codes":
		ctx, cancel := a.callCtx(ctx)
		defer cancel()
		n, err := a.client.BackupCodeStatus(ctx)
		if err != nil {
			return a.afterAuthError(err)
		}
		fmt.Fprintf(a.out, "%d backup code(s) left\n", n)
	case "regen":
		code, err := getSimpleText(a.reader, "Enter authenticator code", a.out)
		if err != nil {
			return err
		}
		ctx, cancel := a.callCtx(ctx)
		defer cancel()
		list, err := a.client.RegenerateBackupCodes(ctx, code)
		if err != nil {
			return a.afterAuthError(err)
		}
		a.printBackupCodes(list)
	default:
		fmt.Fprintln(a.out, "Usage: mfa enable|disable|codes|regen")
	}
	return nil
}

func (a *App) enableSecondFactor(ctx context.Context) error {
	callCtx, cancel := a.callCtx(ctx)
	setup, err := a.client.SetupSecondFactor(callCtx)
	cancel()
	if err != nil {
		return a.afterAuthError(err)
	}

	fmt.Fprintln(a.out, "Add this key to your authenticator app:")
	fmt.Fprintln(a.out, "  "+setup.Secret)
	fmt.Fprintln(a.out, "  "+setup.URI)

	code, err := getSimpleText(a.reader, "Enter the code it shows", a.out)
	if err != nil {
		return err
	}

	callCtx, cancel = a.callCtx(ctx)
	defer cancel()
	list, err := a.client.EnableSecondFactor(callCtx, setup.Secret, code)
	if err != nil {
		return a.afterAuthError(err)
	}
	fmt.Fprintln(a.out, "Second factor enabled")
	a.printBackupCodes(list)
	return nil
}

func (a *App) printBackupCodes(list []string) {
	fmt.Fprintln(a.out, "Backup codes, each works once:")
	fmt.Fprintln(a.out, "  "+strings.Join(list, "  "))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
