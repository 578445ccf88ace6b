package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// LoginCommand signs in with an identity token.
type LoginCommand struct {
	env       Env
	Token     string
	TokenFile string
}

func NewLoginCommand(env Env) *LoginCommand {
	return &LoginCommand{env: env}
}

func (cmd *LoginCommand) ParseFlags(args []string) error {
	fs := newFlagSet("login", "[options]",
		"Exchange an identity token for a book service session.\n"+
			"Without -token or -token-file the configured identity provider is asked silently.",
		"login -token eyJhbGciOi...",
		"login -token-file ~/.config/shelfscan/id_token",
	)
	fs.StringVar(&cmd.Token, "token", "", "Identity token issued by the identity provider")
	fs.StringVar(&cmd.TokenFile, "token-file", "", "Read the identity token from this file")
	return fs.Parse(args)
}

func (cmd *LoginCommand) Run(ctx context.Context) error {
	token := strings.TrimSpace(cmd.Token)
	if token == "" && cmd.TokenFile != "" {
		raw, err := os.ReadFile(cmd.TokenFile)
		if err != nil {
			return fmt.Errorf("failed to read token file: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}

	return cmd.env.with(ctx, func(svc Service) error {
		var err error
		if token != "" {
			_, err = svc.SignIn(ctx, token)
		} else {
			_, err = svc.SignInSilently(ctx)
		}
		if err != nil {
			return fmt.Errorf("sign in failed: %w", err)
		}
		session, _ := svc.Profile(ctx)
		fmt.Fprintf(cmd.env.stdout(), "✅ Signed in as %s\n", displayName(session.Name, session.Email))
		fmt.Fprintf(cmd.env.stdout(), "📚 %d books in collection\n", len(svc.Books()))
		return nil
	})
}

// LogoutCommand forgets the stored session.
type LogoutCommand struct {
	env Env
}

func NewLogoutCommand(env Env) *LogoutCommand {
	return &LogoutCommand{env: env}
}

func (cmd *LogoutCommand) ParseFlags(args []string) error {
	return newFlagSet("logout", "", "Forget the stored session.").Parse(args)
}

func (cmd *LogoutCommand) Run(ctx context.Context) error {
	return cmd.env.with(ctx, func(svc Service) error {
		if err := svc.SignOut(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.env.stdout(), "👋 Signed out")
		return nil
	})
}

// WhoamiCommand shows the signed-in user.
type WhoamiCommand struct {
	env Env
}

func NewWhoamiCommand(env Env) *WhoamiCommand {
	return &WhoamiCommand{env: env}
}

func (cmd *WhoamiCommand) ParseFlags(args []string) error {
	return newFlagSet("whoami", "", "Show the signed-in user.").Parse(args)
}

func (cmd *WhoamiCommand) Run(ctx context.Context) error {
	return cmd.env.with(ctx, func(svc Service) error {
		session, ok := svc.Profile(ctx)
		if !ok {
			return fmt.Errorf("not signed in, run '%s login'", os.Args[0])
		}
		out := cmd.env.stdout()
		fmt.Fprintf(out, "Name:    %s\n", session.Name)
		fmt.Fprintf(out, "Email:   %s\n", session.Email)
		if session.UserID != "" {
			fmt.Fprintf(out, "User ID: %s\n", session.UserID)
		}
		if session.ExpiresAt != nil {
			state := "valid"
			if session.Expired(time.Now()) {
				state = "expired, will refresh on next request"
			}
			fmt.Fprintf(out, "Expires: %s (%s)\n", session.ExpiresAt.Format(time.RFC3339), state)
		}
		return nil
	})
}

func displayName(name, email string) string {
	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s <%s>", name, email)
	case email != "":
		return email
	default:
		return name
	}
}
