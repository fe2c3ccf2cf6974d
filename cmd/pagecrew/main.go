package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmuk/pagecrew/pkg/artifact"
	"github.com/jmuk/pagecrew/pkg/chat"
	"github.com/jmuk/pagecrew/pkg/config"
	"github.com/jmuk/pagecrew/pkg/mcpserver"
	"github.com/jmuk/pagecrew/pkg/session"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	configFile string
	resumeID   string
)

var rootCmd = &cobra.Command{
	Use:   "pagecrew",
	Short: "A team of agents building web pages from screenshots",
	Long: `pagecrew runs a supervisor, a planner, an engineer and a reviewer which
build a web page from the screenshot you attach with @path/to/image.png.
The page is written into the artifacts directory.`,
	Version:      version,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runChat,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the artifacts read-only over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the sessions of the current directory",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Print every artifact of the current directory",
	Args:  cobra.NoArgs,
	RunE:  runArtifacts,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "the config file (default $XDG_CONFIG_HOME/pagecrew/config.toml)")
	rootCmd.Flags().StringVar(&resumeID, "resume", "", "resume the session of the ID")
	rootCmd.AddCommand(mcpCmd, sessionsCmd, artifactsCmd)
}

func resolveConfigFile() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	return config.DefaultConfigFile()
}

func runChat(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	file, err := resolveConfigFile()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	c, err := chat.New(ctx, chat.Options{
		ConfigFile: file,
		Cwd:        cwd,
		ResumeID:   resumeID,
		Out:        cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	defer c.Close()
	return c.RunLoop(ctx)
}

// openStore opens the artifact directory of the current directory.
func openStore() (*artifact.DirStore, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	file, err := resolveConfigFile()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(file)
	if err != nil {
		return nil, err
	}
	return artifact.NewDirStore(chat.ArtifactsDir(cfg, cwd), cfg.AllowedExtensions)
}

func runMCP(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return mcpserver.New(store, version).Run(cmd.Context())
}

func runArtifacts(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	rendered, err := artifact.Render(store)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	sessions, err := session.ListSessions(cwd)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.ID(), s.Timestamp().Format(time.RFC1123Z))
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}
