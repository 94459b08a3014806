package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/faceauth/pkg/flow"
)

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account with a face capture",
	Long: `Create an account. After the account fields are entered the detector
models are loaded and the camera starts; press Enter to capture your face,
then confirm to submit the registration.`,
	RunE: runSignup,
}

func init() {
	signupCmd.Flags().String("name", "", "Full name")
	signupCmd.Flags().String("email", "", "Email address")
	signupCmd.Flags().String("preview", "", "Write the captured face snapshot (PNG) to this file")
	rootCmd.AddCommand(signupCmd)
}

func runSignup(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := newTerminal()
	a, err := newApp(cfg, t)
	if err != nil {
		return err
	}
	defer a.Close()

	e := flow.NewEnrollment(a.deps())
	defer e.Close()

	var account flow.Account
	if account.Name, err = t.PromptDefault("Name", mustGetString(cmd, "name")); err != nil {
		return err
	}
	if account.Email, err = t.PromptDefault("Email", mustGetString(cmd, "email")); err != nil {
		return err
	}
	if account.Password, err = t.Secret("Password"); err != nil {
		return err
	}
	if err := e.SetAccount(account); err != nil {
		return err
	}

	t.Status(flow.StatusLoadingModels)
	if err := e.Next(ctx); err != nil {
		return err
	}
	t.Status(e.Status())

	for {
		if err := captureFace(ctx, t, e); err != nil {
			return err
		}
		ok, err := t.Confirm("Submit this capture?")
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if err := e.Retake(ctx); err != nil {
			return err
		}
		t.Status(e.Status())
	}

	if path := mustGetString(cmd, "preview"); path != "" {
		if err := os.WriteFile(path, e.Preview(), 0600); err != nil {
			return fmt.Errorf("failed to write preview: %w", err)
		}
		t.Status("Snapshot written to " + path)
	}

	return e.Submit(ctx)
}

// captureFace asks for captures until a face is found. Other failures end
// the command.
func captureFace(ctx context.Context, t *terminal, e *flow.Enrollment) error {
	for {
		if err := t.WaitEnter("Look at the camera and press Enter to capture"); err != nil {
			return err
		}
		err := e.Capture(ctx)
		if err == nil {
			t.Status(e.Status())
			return nil
		}
		if flow.CodeOf(err) != flow.ErrCodeNoFace {
			return err
		}
		t.Status(e.Status())
	}
}
