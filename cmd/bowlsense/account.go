package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/okian/bowlsense/internal/adapters/http/client"
	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/internal/session"
)

func newFlagSet(name string, e *env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.errOut)
	return fs
}

func cmdGuest(ctx context.Context, e *env, args []string) error {
	if err := newFlagSet("guest", e).Parse(args); err != nil {
		return err
	}
	sess, err := e.svc.Guest(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Continuing as guest (device %s)\n", sess.GuestID)
	return nil
}

func cmdLogin(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("login", e)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := e.secret(*password)
	if err != nil {
		return err
	}

	sess, err := e.svc.Login(ctx, strings.TrimSpace(*email), secret)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			return errors.New("invalid email or password")
		}
		return err
	}
	fmt.Fprintf(e.out, "Signed in as %s\n", userLine(sess.User))
	return nil
}

func cmdRegister(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("register", e)
	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	style := fs.String("style", "", "Bowling style: fast, medium or spin")
	arm := fs.String("arm", "", "Bowling arm: right or left")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*name) == "" || strings.TrimSpace(*email) == "" {
		return errors.New("--name and --email are required")
	}
	secret, err := e.secret(*password)
	if err != nil {
		return err
	}

	in := client.RegisterInput{
		Name:     strings.TrimSpace(*name),
		Email:    strings.TrimSpace(*email),
		Password: secret,
	}
	if *style != "" {
		in.BowlingStyle = model.ParseBowlingStyle(*style)
	}
	if *arm != "" {
		in.BowlingArm = model.ParseBowlingArm(*arm)
	}
	sess, err := e.svc.Register(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Welcome, %s\n", userLine(sess.User))
	return nil
}

func cmdLogout(ctx context.Context, e *env, args []string) error {
	if err := newFlagSet("logout", e).Parse(args); err != nil {
		return err
	}
	if err := e.svc.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "Signed out")
	return nil
}

func cmdWhoAmI(ctx context.Context, e *env, args []string) error {
	if err := newFlagSet("whoami", e).Parse(args); err != nil {
		return err
	}
	sess, err := e.svc.WhoAmI(ctx)
	switch {
	case errors.Is(err, session.ErrNotSignedIn):
		return errors.New("not signed in; run `bowlsense guest` or `bowlsense login`")
	case errors.Is(err, session.ErrSessionExpired):
		return errors.New("session expired; run `bowlsense login` again")
	case err != nil:
		return err
	}
	printUser(e.out, sess)
	return nil
}

func cmdProfile(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("profile", e)
	style := fs.String("style", "", "Bowling style: fast, medium or spin")
	arm := fs.String("arm", "", "Bowling arm: right or left")
	name := fs.String("name", "", "Display name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var in client.ProfileUpdate
	in.Name = strings.TrimSpace(*name)
	if *style != "" {
		if in.BowlingStyle = model.ParseBowlingStyle(*style); in.BowlingStyle == model.StyleUnknown {
			return fmt.Errorf("unknown bowling style %q", *style)
		}
	}
	if *arm != "" {
		if in.BowlingArm = model.ParseBowlingArm(*arm); in.BowlingArm == model.ArmUnknown {
			return fmt.Errorf("unknown bowling arm %q", *arm)
		}
	}
	if in == (client.ProfileUpdate{}) {
		return errors.New("nothing to update; pass --style, --arm or --name")
	}

	u, err := e.svc.UpdateProfile(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Profile updated: %s\n", userLine(&u))
	return nil
}

func (e *env) secret(flagValue string) (string, error) {
	if s := strings.TrimSpace(flagValue); s != "" {
		return s, nil
	}
	return e.readPassword()
}

func userLine(u *model.User) string {
	if u == nil {
		return "nobody"
	}
	if u.Email != "" {
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	}
	return u.Name
}

func printUser(w io.Writer, s model.Session) {
	u := s.User
	kind := "registered"
	if !s.Authenticated() {
		kind = "guest"
	}
	fmt.Fprintf(w, "User:    %s (%s)\n", userLine(u), kind)
	fmt.Fprintf(w, "Style:   %s\n", u.BowlingStyle)
	fmt.Fprintf(w, "Arm:     %s\n", u.BowlingArm)
	if s.GuestID != "" {
		fmt.Fprintf(w, "Device:  %s\n", s.GuestID)
	}
}
