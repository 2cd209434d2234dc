package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/hostwarden/internal/config"
)

func init() {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, file, environment and flags. --write saves it to the config path.",
		Args:  cobra.NoArgs,
		Run:   runConfig,
	}

	cmd.Flags().Bool("write", false, "Save the effective configuration to the config file")

	RootCmd.AddCommand(cmd)
}

func runConfig(cmd *cobra.Command, args []string) {
	write, _ := cmd.Flags().GetBool("write")

	if write {
		path := config.Path(configPath)
		if err := config.Save(path, cfg); err != nil {
			exitErr("save config", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
		return
	}

	if outputFormat() == "json" {
		printJSON(cfg)
		return
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		exitErr("marshal config", err)
	}
	fmt.Print(string(b))
}
