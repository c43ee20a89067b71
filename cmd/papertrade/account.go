package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/rickgao/papertrade/internal/model"
)

// passwordEnv is read when -password is not given.
const passwordEnv = "PAPERTRADE_PASSWORD"

func password(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv(passwordEnv); v != "" {
		return v, nil
	}
	return "", errors.New("password is required (-password or " + passwordEnv + ")")
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	pass := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("-email is required")
	}
	pw, err := password(*pass)
	if err != nil {
		return err
	}

	if err := a.session.Login(ctx, *email, pw); err != nil {
		return err
	}
	return printUser(a, a.session.User())
}

func runRegister(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	var reg model.Registration
	fs.StringVar(&reg.Email, "email", "", "account email")
	fs.StringVar(&reg.FirstName, "first", "", "first name")
	fs.StringVar(&reg.LastName, "last", "", "last name")
	fs.StringVar(&reg.Phone, "phone", "", "phone number")
	fs.StringVar(&reg.Bio, "bio", "", "short bio")
	pass := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if reg.Email == "" {
		return errors.New("-email is required")
	}
	pw, err := password(*pass)
	if err != nil {
		return err
	}
	reg.Password = pw

	if err := a.session.Register(ctx, reg); err != nil {
		return err
	}
	return printUser(a, a.session.User())
}

func runLogout(ctx context.Context, a *app, args []string) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	a.out.line("signed out")
	return nil
}

func runMe(ctx context.Context, a *app, args []string) error {
	return printUser(a, a.session.User())
}

// runProfile prints the profile, or updates it when any field flag is set.
func runProfile(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	first := fs.String("first", "", "new first name")
	last := fs.String("last", "", "new last name")
	phone := fs.String("phone", "", "new phone number")
	bio := fs.String("bio", "", "new bio")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var update model.ProfileUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "first":
			update.FirstName = first
		case "last":
			update.LastName = last
		case "phone":
			update.Phone = phone
		case "bio":
			update.Bio = bio
		}
	})

	if update != (model.ProfileUpdate{}) {
		if err := a.session.UpdateProfile(ctx, update); err != nil {
			return err
		}
	}

	user, err := a.client.Profile(ctx)
	if err != nil {
		return err
	}
	return printUser(a, user)
}

func printUser(a *app, u *model.User) error {
	if u == nil {
		return errors.New("not signed in")
	}
	return a.out.value(u, func() {
		a.out.line("%s <%s> (id %d)", u.DisplayName(), u.Email, u.ID)
		if u.Phone != "" {
			a.out.line("phone:   %s", u.Phone)
		}
		if u.Bio != "" {
			a.out.line("bio:     %s", u.Bio)
		}
		if u.Balance != nil {
			a.out.line("balance: %s", u.Balance.StringFixed(2))
		}
		if u.TotalPnL != nil {
			a.out.line("pnl:     %s", u.TotalPnL.StringFixed(2))
		}
		if u.TotalTrades > 0 {
			a.out.line("trades:  %d (%d active)", u.TotalTrades, u.ActiveTrades)
		}
	})
}
