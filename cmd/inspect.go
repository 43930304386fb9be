package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/smazurov/gstgraph/internal/config"
	"github.com/smazurov/gstgraph/internal/graph"
	"github.com/smazurov/gstgraph/internal/session"
)

// CreateInspectCmd creates the inspect command.
func CreateInspectCmd() *cobra.Command {
	var (
		flags     sessionFlags
		outputDir string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the graph a session would build",
		Long: `Builds the graph from the [defaults] table of the config file and the flags without ` +
			`touching any media framework, and prints it as a launch description or as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadDefaults(flags.configFile)
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg)
			return inspect(cmd.OutOrStdout(), cfg, outputDir, asJSON)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "output", "Directory persisted files would go to")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print nodes and links as JSON")
	return cmd
}

func inspect(out io.Writer, cfg session.Config, outputDir string, asJSON bool) error {
	opts := graph.DefaultOptions()
	opts.SessionID = "inspect"
	opts.OutputDir = outputDir
	g, err := graph.Build(cfg.Spec(), opts)
	if err != nil {
		return err
	}

	if !asJSON {
		_, err := fmt.Fprintln(out, graph.Describe(g))
		return err
	}

	doc := struct {
		Nodes  []graph.Node  `json:"nodes"`
		Links  []graph.Link  `json:"links"`
		Output *graph.Output `json:"output,omitempty"`
	}{Nodes: g.Nodes(), Links: g.Links()}
	if o, ok := g.Output(); ok {
		doc.Output = &o
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
