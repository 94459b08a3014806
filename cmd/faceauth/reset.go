package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/faceauth/pkg/flow"
)

var resetCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Reset your password with a one-time password sent by email",
	RunE:  runReset,
}

func init() {
	resetCmd.Flags().String("email", "", "Email address of the account")
	resetCmd.Flags().Int("otp-attempts", 3, "OTP entries to try before giving up")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := newTerminal()
	a, err := newApp(cfg, t)
	if err != nil {
		return err
	}
	defer a.Close()

	r := flow.NewReset(a.deps())
	defer r.Close()

	email, err := t.PromptDefault("Email", mustGetString(cmd, "email"))
	if err != nil {
		return err
	}
	if err := r.RequestOTP(ctx, email); err != nil {
		return err
	}

	if err := enterOTP(ctx, t, r, max(mustGetInt(cmd, "otp-attempts"), 1)); err != nil {
		return err
	}

	password, err := newPassword(t)
	if err != nil {
		return err
	}
	if err := r.SetNewPassword(ctx, password); err != nil {
		return err
	}

	select {
	case <-t.routes:
	case <-time.After(cfg.Flow.RedirectDelay + time.Second):
	case <-ctx.Done():
	}
	return nil
}

// enterOTP asks for the OTP until it verifies. A wrong code keeps the
// reset on the same step.
func enterOTP(ctx context.Context, t *terminal, r *flow.Reset, attempts int) error {
	for i := 1; ; i++ {
		otp, err := t.Prompt("OTP")
		if err != nil {
			return err
		}
		err = r.VerifyOTP(ctx, otp)
		if err == nil {
			return nil
		}
		code := flow.CodeOf(err)
		if (code != flow.ErrCodeServer && code != flow.ErrCodeValidation) || i >= attempts {
			return err
		}
		t.Status(r.Status())
	}
}

func newPassword(t *terminal) (string, error) {
	password, err := t.Secret("New password")
	if err != nil {
		return "", err
	}
	confirm, err := t.Secret("Repeat new password")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", fmt.Errorf("passwords do not match")
	}
	return password, nil
}
