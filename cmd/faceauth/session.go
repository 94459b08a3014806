package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/cobra"

	"github.com/MrCodeEU/faceauth/pkg/session"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored login session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.New(cfg.Session)
		if err != nil {
			return err
		}
		defer closeStore(store)
		if err := store.Clear(); err != nil {
			return fmt.Errorf("failed to clear session: %w", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.New(cfg.Session)
		if err != nil {
			return err
		}
		defer closeStore(store)

		rec, err := store.Get()
		if errors.Is(err, session.ErrNoSession) {
			fmt.Println("Not logged in.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read session: %w", err)
		}
		describeSession(os.Stdout, rec, time.Now())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

func closeStore(store session.Store) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}

// describeSession prints the session email and, when the token is a JWT,
// its expiry. The token signature is not checked; only the server can.
func describeSession(w io.Writer, rec *session.Record, now time.Time) {
	fmt.Fprintf(w, "Email: %s\n", rec.Email)

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rec.Token, claims); err != nil {
		fmt.Fprintln(w, "Token: opaque")
		return
	}
	if claims.ExpiresAt == nil {
		fmt.Fprintln(w, "Token: no expiry")
		return
	}
	exp := claims.ExpiresAt.Time
	if now.After(exp) {
		fmt.Fprintf(w, "Token: expired at %s\n", exp.Format(time.RFC3339))
		return
	}
	fmt.Fprintf(w, "Token: valid until %s (%s left)\n", exp.Format(time.RFC3339), exp.Sub(now).Round(time.Second))
}
