package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Recover(ctx context.Context) error
	Logout(ctx context.Context) error
	LogoutAll(ctx context.Context) error
	Sessions(ctx context.Context) error
	ChangePassword(ctx context.Context) error
	NewRecoveryKey(ctx context.Context) error
	DeleteAccount(ctx context.Context) error
	SecondFactor(ctx context.Context, args []string) error
}

// runREPL starts a simple read–eval–print loop for the VaultKeeper CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. Unknown commands are reported back to the
// user. The loop exits on EOF or when the user types "exit" or "quit".
//
// Prompt & Commands
//
//	Not logged in:
//	  - help           show available commands
//	  - register       create an account
//	  - login          authenticate, asking for a code when required
//	  - recover        reset the password with the recovery key
//	  - exit | quit    leave the program
//
//	Logged in:
//	  - sessions       list active sessions
//	  - passwd         change the password (ends every session)
//	  - recoverykey    issue a new recovery key
//	  - mfa <sub>      enable | disable | codes | regen
//	  - logout         end this session
//	  - logoutall      end every session
//	  - deleteaccount  delete the account and its vault
//	  - exit | quit    leave the program
//
// Errors returned by command handlers are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("vk %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: sessions, passwd, recoverykey, mfa, logout, logoutall, deleteaccount, exit")
			} else {
				printlnFn("Available commands: register, login, recover, exit")
			}

		case "register":
			cmdErr = a.Register(ctx)
		case "login":
			cmdErr = a.Login(ctx)
		case "recover":
			cmdErr = a.Recover(ctx)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "logoutall":
			cmdErr = a.LogoutAll(ctx)
		case "sessions":
			cmdErr = a.Sessions(ctx)
		case "passwd":
			cmdErr = a.ChangePassword(ctx)
		case "recoverykey":
			cmdErr = a.NewRecoveryKey(ctx)
		case "deleteaccount":
			cmdErr = a.DeleteAccount(ctx)
		case "mfa":
			cmdErr = a.SecondFactor(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", cmdErr)
		}
	}
}
