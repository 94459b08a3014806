package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/faceauth/pkg/flow"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password, or with your face",
	RunE:  runLogin,
}

func init() {
	loginCmd.Flags().Bool("face", false, "Log in with a face capture")
	loginCmd.Flags().String("email", "", "Email address for password login")
	loginCmd.Flags().Int("attempts", 3, "Face captures to try before giving up")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := newTerminal()
	a, err := newApp(cfg, t)
	if err != nil {
		return err
	}
	defer a.Close()

	l := flow.NewLogin(a.deps())
	defer l.Close()

	email := mustGetString(cmd, "email")
	if !mustGetBool(cmd, "face") {
		return passwordLogin(ctx, t, l, email)
	}

	t.Status(flow.StatusLoadingModels)
	if err := l.SwitchToFace(ctx); err != nil {
		switch flow.CodeOf(err) {
		case flow.ErrCodePermissionDenied, flow.ErrCodeDeviceUnavailable:
			t.Status(l.Status())
			t.Status("Falling back to password login.")
			if err := l.SwitchToCredentials(); err != nil {
				return err
			}
			return passwordLogin(ctx, t, l, email)
		default:
			return err
		}
	}
	t.Status(l.Status())

	attempts := max(mustGetInt(cmd, "attempts"), 1)
	for i := 1; ; i++ {
		if err := t.WaitEnter("Look at the camera and press Enter to log in"); err != nil {
			return err
		}
		err := l.CaptureAndLogin(ctx)
		if err == nil {
			return nil
		}
		if flow.CodeOf(err) != flow.ErrCodeNoFace || i >= attempts {
			return err
		}
		t.Status(l.Status())
	}
}

func passwordLogin(ctx context.Context, t *terminal, l *flow.Login, email string) error {
	email, err := t.PromptDefault("Email", email)
	if err != nil {
		return err
	}
	password, err := t.Secret("Password")
	if err != nil {
		return err
	}
	return l.SubmitCredentials(ctx, email, password)
}
