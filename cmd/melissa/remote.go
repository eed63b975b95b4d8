package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethanbaker/melissa/pkg/sdk"
	"github.com/spf13/cobra"
)

var serverURL string

func newClient() *sdk.Client {
	url := serverURL
	if url == "" {
		url = cfg.GetWithDefault("API_URL", "http://localhost:"+cfg.GetWithDefault("API_PORT", "8080"))
	}
	return sdk.NewClient(url, cfg.Get("API_KEY"))
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

var gateCmd = &cobra.Command{
	Use:       "gate [status|activate|deactivate|extend]",
	Short:     "Inspect or control the activation gate of a running assistant",
	GroupID:   "remote",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"status", sdk.GateActivate, sdk.GateDeactivate, sdk.GateExtend},
	RunE: func(cmd *cobra.Command, args []string) error {
		action := "status"
		if len(args) == 1 {
			action = args[0]
		}

		client := newClient()

		var (
			status *sdk.GateStatus
			err    error
		)
		if action == "status" {
			status, err = client.GateStatus(cmd.Context())
		} else {
			status, err = client.GateAction(cmd.Context(), action)
		}
		if err != nil {
			return err
		}

		return printGateStatus(os.Stdout, status)
	},
}

func printGateStatus(w io.Writer, status *sdk.GateStatus) error {
	if jsonOutput {
		return printJSON(w, status)
	}

	fmt.Fprintln(w, "Activation Gate")
	if !status.Active {
		fmt.Fprintln(w, "  State:     inactive")
	} else {
		fmt.Fprintln(w, "  State:     active")
		if status.ActiveUntil != nil {
			fmt.Fprintf(w, "  Until:     %s\n", status.ActiveUntil.Local().Format("15:04:05"))
		}
		fmt.Fprintf(w, "  Remaining: %s\n", (time.Duration(status.RemainingSeconds * float64(time.Second))).Round(time.Second))
	}
	fmt.Fprintf(w, "  Timeout:   %s\n", time.Duration(status.TimeoutSeconds*float64(time.Second)))
	return nil
}

var memoriesCmd = &cobra.Command{
	Use:     "memories",
	Short:   "List what the assistant remembers about you",
	GroupID: "remote",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := newClient().ListMemories(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(os.Stdout, list)
		}
		if list.Count == 0 {
			fmt.Println("No memories stored yet.")
			return nil
		}
		fmt.Printf("%d memories for %s\n", list.Count, list.UserID)
		for _, m := range list.Memories {
			fmt.Printf("  - %s\n", m.Text)
		}
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete every stored memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		deleted, err := newClient().ForgetMemories(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d memories\n", deleted)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{gateCmd, memoriesCmd} {
		c.PersistentFlags().StringVar(&serverURL, "server", "", "API base URL (defaults to API_URL or http://localhost:API_PORT)")
	}
	memoriesCmd.AddCommand(forgetCmd)
}
