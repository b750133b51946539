// mathchat - terminal chat widget for a math-tutoring chat backend.
// The root command opens the widget; subcommands manage the session and the
// persisted conversation from the shell.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mathchat/pkg/backend"
	"mathchat/pkg/config"
	"mathchat/pkg/export"
	"mathchat/pkg/logger"
	"mathchat/pkg/render"
	"mathchat/pkg/widget"
)

var (
	cfgPath   string
	serverURL string
)

func main() {
	root := &cobra.Command{
		Use:          "mathchat",
		Short:        "Chat with the study-assistant backend from the terminal",
		SilenceUsage: true,
		RunE:         runChat,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
	root.PersistentFlags().StringVar(&serverURL, "server", "", "backend base URL (overrides config)")

	root.AddCommand(signupCmd(), loginCmd(), logoutCmd(), clearCmd(), exportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *backend.Client, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if err := logger.Setup(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, nil, err
	}
	client, err := backend.New(cfg.Server.BaseURL, config.SessionPath())
	if err != nil {
		return nil, nil, err
	}
	return cfg, client, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, client, err := setup()
	if err != nil {
		return err
	}

	md, err := render.NewANSI(76)
	if err != nil {
		return err
	}
	ts := render.NewTerminal(func(s string) string {
		return "[yellow::i]" + s + "[-::-]"
	})

	ctrl := widget.NewController(cfg.UI, client, md, ts)
	ctrl.SetReadyFunc(ts.SignalReady)

	logger.InfoCF("main", "widget starting", map[string]interface{}{
		"server": cfg.Server.BaseURL,
	})
	return ctrl.Run()
}

func promptLine(label string) (string, error) {
	fmt.Print(label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(label string) (string, error) {
	fmt.Print(label)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [email]",
		Short: "Authenticate and store the backend session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := setup()
			if err != nil {
				return err
			}

			var email string
			if len(args) == 1 {
				email = args[0]
			} else {
				if email, err = promptLine("Email: "); err != nil {
					return err
				}
			}

			pw, err := promptPassword("Password: ")
			if err != nil {
				return err
			}

			if err := client.Login(context.Background(), email, pw); err != nil {
				return err
			}
			fmt.Println("Logged in.")
			return nil
		},
	}
}

func signupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signup [email]",
		Short: "Create a backend account and log in",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := setup()
			if err != nil {
				return err
			}

			first, err := promptLine("First name: ")
			if err != nil {
				return err
			}
			last, err := promptLine("Last name: ")
			if err != nil {
				return err
			}
			var email string
			if len(args) == 1 {
				email = args[0]
			} else {
				if email, err = promptLine("Email: "); err != nil {
					return err
				}
			}

			pw, err := promptPassword("Password: ")
			if err != nil {
				return err
			}
			confirm, err := promptPassword("Confirm password: ")
			if err != nil {
				return err
			}
			if pw != confirm {
				return errors.New("passwords do not match")
			}

			if err := client.Signup(context.Background(), first, last, email, pw); err != nil {
				return err
			}
			fmt.Println("Account created and logged in.")
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the stored backend session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := setup()
			if err != nil {
				return err
			}
			if err := client.Logout(context.Background()); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the persisted conversation on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := setup()
			if err != nil {
				return err
			}
			if err := client.Clear(context.Background()); err != nil {
				return err
			}
			fmt.Println("History cleared.")
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the conversation as an HTML transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, err := setup()
			if err != nil {
				return err
			}

			turns, err := client.History(context.Background())
			if err != nil {
				return fmt.Errorf("fetching history: %w", err)
			}
			if len(turns) == 0 {
				fmt.Println("No conversation to export.")
				return nil
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()

			if err := export.HTML(cfg.UI.Title, turns, f); err != nil {
				return err
			}
			fmt.Printf("Wrote %d turns to %s\n", len(turns), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "mathchat-transcript.html", "output file")
	return cmd
}
