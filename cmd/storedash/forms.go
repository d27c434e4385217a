// cmd/storedash/forms.go
//
// Offline form tooling: list, structure-check, and validate values against
// the same engine the service runs.
package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yanizio/storedash/internal/auth"
	"github.com/yanizio/storedash/internal/form"
)

func formsCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "forms",
		Short: "Inspect and exercise YAML form definitions",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "forms", "form definition directory")

	cmd.AddCommand(formsListCmd(&dir), formsCheckCmd(), formsValidateCmd(&dir))
	return cmd
}

func formsListCmd(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the registered form definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := form.RegisterForms(*dir); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tRESOURCE\tFIELDS\tACTIONS")
			for _, id := range form.FormIDs() {
				fd, _ := form.GetFormDef(id)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", fd.ID, fd.Title, fd.Resource, len(fd.Fields), len(fd.Actions))
			}
			return tw.Flush()
		},
	}
}

func formsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file.yaml>...",
		Short: "Validate the structure of form definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				fd, err := form.LoadFormDef(path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "ok   %s (%s, %d fields)\n", path, fd.ID, len(fd.Fields))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d definitions invalid", failed, len(args))
			}
			return nil
		},
	}
}

var errRejected = errors.New("values rejected")

func formsValidateCmd(dir *string) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "validate <form-id> <values.yaml>",
		Short: "Run the submit gate over a values file and print field errors",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := form.RegisterForms(*dir); err != nil {
				return err
			}
			fd, ok := form.GetFormDef(args[0])
			if !ok {
				return fmt.Errorf("%w %q", form.ErrUnknownForm, args[0])
			}

			raw, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			var values map[string]any
			if err := yaml.Unmarshal(raw, &values); err != nil {
				return fmt.Errorf("parse %s: %w", args[1], err)
			}

			p := auth.Principal{Role: role}
			res := form.Replay(fd, p.Flags(), form.Request{Values: values, Submit: true}, nil)

			out := cmd.OutOrStdout()
			if res.Accepted {
				fmt.Fprintf(out, "ok: %s accepts %s\n", fd.ID, args[1])
				return nil
			}
			names := make([]string, 0, len(res.State.Errors))
			for name := range res.State.Errors {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "%s: %s\n", name, res.State.Errors[name])
			}
			return errRejected
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleStaff, "role to validate as (staff, manager, admin)")
	return cmd
}
