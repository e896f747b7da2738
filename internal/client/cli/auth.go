package cli

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/dmitrijs2005/vaultkeeper/internal/client/client"
	"github.com/dmitrijs2005/vaultkeeper/internal/common"
)

// getSimpleText, getPassword and getNewPassword are indirections used to
// facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var (
	getSimpleText  = GetSimpleText
	getPassword    = GetPassword
	getNewPassword = GetNewPassword
	wipe           = common.WipeByteArray
)

// Register prompts for a username and password and creates the account.
// The recovery key is printed once; the user has to store it.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	password, err := getNewPassword(a.out)
	if err != nil {
		return err
	}
	defer wipe(password)

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	res, err := a.client.Register(ctx, userName, password)
	if err != nil {
		return err
	}
	wipe(res.VaultKey)

	fmt.Fprintln(a.out, "Account created. Your recovery key is shown only once, keep it offline:")
	fmt.Fprintln(a.out, "  "+res.RecoveryKey)
	return nil
}

// Login prompts for credentials and, when the account has a second factor,
// for a code. On success the vault key is kept in memory until logout.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return err
	}
	defer wipe(password)

	callCtx, cancel := a.callCtx(ctx)
	res, err := a.client.Login(callCtx, userName, password)
	cancel()
	if err != nil {
		if errors.Is(err, client.ErrUnavailable) {
			a.setMode(ModeOffline)
		}
		return err
	}

	if res.SecondFactorRequired {
		code, err := getSimpleText(a.reader, "Enter authenticator or backup code", a.out)
		if err != nil {
			return err
		}

		callCtx, cancel := a.callCtx(ctx)
		res, err = a.client.CompleteSecondFactor(callCtx, res.ChallengeToken, code)
		cancel()
		if err != nil {
			return err
		}
	}

	a.forget()
	a.vaultKey = res.VaultKey
	a.userName = userName
	a.setMode(ModeOnline)
	log.Printf("Login successful, session valid until %s", res.ExpiresAt.Local().Format("15:04"))
	return nil
}

// Recover resets a forgotten password with the recovery key and prints the
// replacement key.
func (a *App) Recover(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	recoveryKey, err := getSimpleText(a.reader, "Enter recovery key", a.out)
	if err != nil {
		return err
	}

	password, err := getNewPassword(a.out)
	if err != nil {
		return err
	}
	defer wipe(password)

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	newKey, err := a.client.Recover(ctx, userName, recoveryKey, password)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Password reset, all sessions ended. Your new recovery key (the old one no longer works):")
	fmt.Fprintln(a.out, "  "+newKey)
	return nil
}

// Logout ends the current session and forgets the vault key.
func (a *App) Logout(ctx context.Context) error {
	if !a.isLoggedIn() {
		return client.ErrNotLoggedIn
	}

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	err := a.client.Logout(ctx)
	a.forget()
	return err
}
