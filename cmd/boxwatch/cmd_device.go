package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/user/boxwatch/internal/api"
	"github.com/user/boxwatch/internal/types"
)

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.AddCommand(deviceListCmd, deviceAddCmd, deviceUpdateCmd, deviceRemoveCmd,
		deviceSelectCmd, deviceCheckCmd, deviceSpaceCmd, deviceHistoryCmd)

	deviceAddCmd.Flags().String("name", "", "display name")
	deviceAddCmd.Flags().StringToString("attr", nil, "device attribute (key=value, repeatable)")

	deviceUpdateCmd.Flags().String("name", "", "new display name")
	deviceUpdateCmd.Flags().StringToString("attr", nil, "attribute to set (key=value, repeatable)")

	deviceSpaceCmd.Flags().Bool("no-store", false, "do not record the result on the device")
	deviceHistoryCmd.Flags().Int("limit", 20, "number of transitions to show")
}

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage paired boxes on the running daemon",
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List paired boxes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := apiClient(loadConfig()).Devices(context.Background())
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}

		if len(devices) == 0 {
			fmt.Println("No devices paired.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PEER ID\tNAME\tSTATUS\tUSED\tCURRENT")
		for _, d := range devices {
			status := string(d.Status)
			if status == "" {
				status = "-"
			}
			used := "-"
			if d.FreeSpace != nil {
				used = fmt.Sprintf("%.1f%%", d.FreeSpace.UsedPercentage)
			}
			current := ""
			if d.Current {
				current = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.PeerID, d.Name, status, used, current)
		}
		return w.Flush()
	},
}

var deviceAddCmd = &cobra.Command{
	Use:   "add <peer-id>",
	Short: "Pair a box (replaces any existing record)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		attrs, _ := cmd.Flags().GetStringToString("attr")

		d := types.Device{PeerID: types.PeerID(args[0]), Name: name, Attrs: parseAttrs(attrs)}
		if _, err := apiClient(loadConfig()).AddDevice(context.Background(), d); err != nil {
			return fmt.Errorf("add device: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Device %q added.\n", args[0])
		return nil
	},
}

// parseAttrs reads each --attr value as a YAML scalar, so port=4001 is
// stored as a number and pinned=true as a bool.
func parseAttrs(raw map[string]string) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		var decoded any
		if err := yaml.Unmarshal([]byte(v), &decoded); err != nil || decoded == nil {
			out[k] = v
			continue
		}
		switch decoded.(type) {
		case map[string]any, []any:
			out[k] = v
		default:
			out[k] = decoded
		}
	}
	return out
}

var deviceUpdateCmd = &cobra.Command{
	Use:   "update <peer-id>",
	Short: "Update fields of a box",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var req api.UpdateRequest
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			req.Name = &name
		}
		attrs, _ := cmd.Flags().GetStringToString("attr")
		req.Attrs = parseAttrs(attrs)
		if req.Name == nil && len(req.Attrs) == 0 {
			return fmt.Errorf("nothing to update: pass --name or --attr")
		}

		if _, err := apiClient(loadConfig()).UpdateDevice(context.Background(), types.PeerID(args[0]), req); err != nil {
			return fmt.Errorf("update device: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Device %q updated.\n", args[0])
		return nil
	},
}

var deviceRemoveCmd = &cobra.Command{
	Use:   "remove <peer-id>",
	Short: "Unpair a box",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient(loadConfig()).RemoveDevice(context.Background(), types.PeerID(args[0])); err != nil {
			return fmt.Errorf("remove device: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Device %q removed.\n", args[0])
		return nil
	},
}

var deviceSelectCmd = &cobra.Command{
	Use:   "select <peer-id>",
	Short: "Make a box the current one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := apiClient(loadConfig()).SelectDevice(context.Background(), types.PeerID(args[0])); err != nil {
			return fmt.Errorf("select device: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Device %q selected.\n", args[0])
		return nil
	},
}

var deviceCheckCmd = &cobra.Command{
	Use:   "check <peer-id>",
	Short: "Check whether the box is reachable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := apiClient(loadConfig()).Check(context.Background(), types.PeerID(args[0]))
		if err != nil {
			return fmt.Errorf("check connection: %w", err)
		}
		fmt.Fprintf(os.Stdout, "%s: %s\n", res.PeerID, res.Status)
		return nil
	},
}

var deviceSpaceCmd = &cobra.Command{
	Use:   "space <peer-id>",
	Short: "Fetch the free space of the connected box",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noStore, _ := cmd.Flags().GetBool("no-store")
		fs, err := apiClient(loadConfig()).FreeSpace(context.Background(), types.PeerID(args[0]), !noStore)
		if err != nil {
			return fmt.Errorf("fetch free space: %w", err)
		}
		fmt.Fprintf(os.Stdout, "size=%d avail=%d used=%d (%.1f%%)\n", fs.Size, fs.Avail, fs.Used, fs.UsedPercentage)
		return nil
	},
}

var deviceHistoryCmd = &cobra.Command{
	Use:   "history <peer-id>",
	Short: "Show recent connection status transitions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := apiClient(loadConfig()).History(context.Background(), types.PeerID(args[0]), limit)
		if err != nil {
			return fmt.Errorf("read history: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No transitions recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tAT\tSTATUS\tPREVIOUS")
		for _, e := range entries {
			prev := strings.TrimSpace(string(e.Previous))
			if prev == "" {
				prev = "-"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Seq, e.At.Local().Format("2006-01-02 15:04:05"), e.Status, prev)
		}
		return w.Flush()
	},
}
