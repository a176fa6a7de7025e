// Package cli implements the featurectl command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"featurecore/internal/core"
	"featurecore/pkg/domain"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Version is reported by the version command. It is set at link time.
var Version = "dev"

type globalOptions struct {
	chdir      string
	configFile string
	logLevel   string
	logFormat  string
}

// Run executes featurectl with args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// NewRootCommand builds the command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "featurectl",
		Short:         "Reconcile feature definitions with the feature registry",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.chdir, "chdir", "c", ".", "feature repository directory")
	flags.StringVarP(&opts.configFile, "feature-store-yaml", "f", "", "path to feature_store.yaml (default: <chdir>/feature_store.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(
		newApplyCommand(opts, stdout, stderr),
		newPlanCommand(opts, stdout, stderr),
		newTeardownCommand(opts, stdout, stderr),
		newRegistryDumpCommand(opts, stdout, stderr),
		newVersionCommand(stdout),
	)
	return root
}

// withSession opens a session for the duration of fn.
func withSession(cmd *cobra.Command, opts *globalOptions, stderr io.Writer, fn func(context.Context, *session) error) (err error) {
	ctx, s, err := openSession(cmd.Context(), opts, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.close(ctx); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()
	return fn(ctx, s)
}

func printSummary(w io.Writer, summary core.AppliedSummary) error {
	_, err := fmt.Fprintln(w, summary.String())
	return err
}

func newApplyCommand(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Create, update or delete registry entries to match the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, stderr, func(ctx context.Context, s *session) error {
				summary, err := s.service.Apply(ctx, s.cfg.Project, s.cfg.Root)
				if err != nil {
					return err
				}
				return printSummary(stdout, summary)
			})
		},
	}
}

func newPlanCommand(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the changes apply would make",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, stderr, func(ctx context.Context, s *session) error {
				cs, err := s.service.Plan(ctx, s.cfg.Project, s.cfg.Root)
				if err != nil {
					return err
				}
				return core.RenderPlan(stdout, cs)
			})
		},
	}
}

func newTeardownCommand(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "teardown",
		Short: "Delete every registry entry of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, stderr, func(ctx context.Context, s *session) error {
				summary, err := s.service.Teardown(ctx, s.cfg.Project)
				if err != nil {
					return err
				}
				return printSummary(stdout, summary)
			})
		},
	}
}

// dumpEntry is the printable form of a registry entry; the spec is decoded
// so YAML output nests it instead of printing bytes.
type dumpEntry struct {
	UID          string       `json:"uid" yaml:"uid"`
	Category     string       `json:"category" yaml:"category"`
	Name         string       `json:"name" yaml:"name"`
	Version      int64        `json:"version" yaml:"version"`
	Spec         any          `json:"spec" yaml:"spec"`
	References   []domain.Key `json:"references,omitempty" yaml:"references,omitempty"`
	DefiningFile string       `json:"defining_file,omitempty" yaml:"defining_file,omitempty"`
	CreatedAt    time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" yaml:"updated_at"`
}

type dump struct {
	Project     string      `json:"project" yaml:"project"`
	UID         string      `json:"uid,omitempty" yaml:"uid,omitempty"`
	LastUpdated *time.Time  `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
	Entries     []dumpEntry `json:"entries" yaml:"entries"`
}

func newDump(snap core.Snapshot) (dump, error) {
	d := dump{Project: snap.Project.Name, UID: snap.Project.UID, Entries: []dumpEntry{}}
	if !snap.Project.LastUpdated.IsZero() {
		t := snap.Project.LastUpdated
		d.LastUpdated = &t
	}
	for _, e := range snap.Sorted() {
		var spec any
		if len(e.Spec) > 0 {
			if err := json.Unmarshal(e.Spec, &spec); err != nil {
				return dump{}, fmt.Errorf("decode spec of %s: %w", e.Key(), err)
			}
		}
		d.Entries = append(d.Entries, dumpEntry{
			UID:          e.UID,
			Category:     string(e.Category),
			Name:         e.Name,
			Version:      e.Version,
			Spec:         spec,
			References:   e.References,
			DefiningFile: e.DefiningFile,
			CreatedAt:    e.CreatedAt,
			UpdatedAt:    e.UpdatedAt,
		})
	}
	return d, nil
}

func writeDump(w io.Writer, d dump, format string) error {
	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported format %q: use json or yaml", format)
}

func newRegistryDumpCommand(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "registry-dump",
		Short: "Print the registry entries of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q: use json or yaml", format)
			}
			return withSession(cmd, opts, stderr, func(ctx context.Context, s *session) error {
				snap, err := s.service.Snapshot(ctx, s.cfg.Project)
				if err != nil {
					return err
				}
				d, err := newDump(snap)
				if err != nil {
					return err
				}
				return writeDump(stdout, d, format)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	return cmd
}

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the featurectl version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintf(stdout, "featurectl %s\n", Version)
			return err
		},
	}
}
