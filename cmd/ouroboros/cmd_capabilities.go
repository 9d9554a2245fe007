package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ouroboros/internal/capability"
	"ouroboros/internal/loop"
)

// capabilitiesCmd groups registry maintenance commands.
func (c *cli) capabilitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "capabilities",
		Aliases: []string{"caps", "tools"},
		Short:   "Inspect and maintain the capability registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List capabilities that load successfully",
		Args:  cobra.NoArgs,
		RunE:  c.listCapabilities,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show [name]",
		Short: "Show a capability's contract, digest and source",
		Args:  cobra.ExactArgs(1),
		RunE:  c.showCapability,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete [name]",
		Short: "Delete a capability",
		Args:  cobra.ExactArgs(1),
		RunE:  c.deleteCapability,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "check [file]",
		Short: "Run the backend syntax check and safety policy over a source file",
		Args:  cobra.ExactArgs(1),
		RunE:  c.checkCapability,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Report capability files added, modified or removed until interrupted",
		Args:  cobra.NoArgs,
		RunE:  c.watchCapabilities,
	})
	return cmd
}

func (c *cli) registry() (*capability.Registry, error) {
	return loop.OpenRegistry(c.cfg)
}

func (c *cli) listCapabilities(cmd *cobra.Command, args []string) error {
	reg, err := c.registry()
	if err != nil {
		return err
	}
	listing, err := reg.List(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), listing.String())
	return nil
}

func (c *cli) showCapability(cmd *cobra.Command, args []string) error {
	reg, err := c.registry()
	if err != nil {
		return err
	}
	h, err := reg.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name:        %s\n", h.Name)
	fmt.Fprintf(out, "Description: %s\n", h.Description)
	fmt.Fprintf(out, "Parameters:  %s\n", h.Parameters)
	fmt.Fprintf(out, "Validated:   %t\n", h.Validated)
	fmt.Fprintf(out, "Digest:      %s\n\n", h.Digest)
	fmt.Fprint(out, h.Source)
	return nil
}

func (c *cli) deleteCapability(cmd *cobra.Command, args []string) error {
	reg, err := c.registry()
	if err != nil {
		return err
	}
	deleted, err := reg.Delete(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s", capability.ErrNotFound, args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func (c *cli) checkCapability(cmd *cobra.Command, args []string) error {
	reg, err := c.registry()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	report := reg.Check(string(data))
	out := cmd.OutOrStdout()
	if report.Safe {
		fmt.Fprintf(out, "%s: OK (backend=%s, imports=%d, calls=%d)\n",
			args[0], reg.Backend().Name(), report.ImportsChecked, report.CallsChecked)
		return nil
	}
	for _, v := range report.Violations {
		fmt.Fprintf(out, "%s: %s %s %s\n", args[0], v.Type, v.Location, v.Description)
	}
	return errors.New("capability check failed")
}

func (c *cli) watchCapabilities(cmd *cobra.Command, args []string) error {
	reg, err := c.registry()
	if err != nil {
		return err
	}
	ctx, cancel := c.signalContext()
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", reg.Dir())
	return reg.Watch(ctx, func(e capability.Event) {
		fmt.Fprintf(out, "%s %s\n", e.Kind, e.Name)
	})
}
