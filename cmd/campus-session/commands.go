package main

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

func (a *app) login(ctx context.Context, args []string, stdin io.Reader) error {
	fs := newFlagSet("login")
	email := fs.String("email", os.Getenv("CAMPUS_EMAIL"), "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	a.manager.Reconcile(ctx)
	secret := *password
	if secret == "" {
		var err error
		if secret, err = readPassword(stdin, a.stdout); err != nil {
			return err
		}
	}

	profile, err := a.manager.Login(ctx, *email, secret)
	if err != nil {
		return err
	}
	a.printf("Signed in as %s\n", displayName(profile))
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	if !a.manager.Reconcile(ctx).IsAuthenticated() {
		a.printf("Not signed in\n")
		return nil
	}
	profile, err := a.manager.RefreshProfile(ctx)
	if err != nil {
		return err
	}
	encoded, err := sessionmodel.EncodeProfile(profile)
	if err != nil {
		return err
	}
	a.printf("%s\n", encoded)
	return nil
}

// status reports the state after the start up refresh has settled, so a
// session revoked on the server shows as signed out.
func (a *app) status(ctx context.Context) error {
	a.manager.Reconcile(ctx)
	a.manager.Wait()

	state := a.manager.State()
	if !state.IsAuthenticated() {
		a.printf("%s\n", state.Kind)
		return nil
	}
	a.printf("%s as %s\n", state.Kind, displayName(state.Profile))
	return nil
}

func (a *app) logout(ctx context.Context) error {
	a.manager.Reconcile(ctx)
	a.manager.Wait()

	res, err := a.manager.Logout(ctx)
	if res.RevocationErr != nil {
		log.Warn().Err(res.RevocationErr).Msg("server did not confirm the logout")
	}
	if err != nil {
		return err
	}
	a.printf("Signed out\n")
	return nil
}
