package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/loomnetwork/featurechain"
	"github.com/loomnetwork/featurechain/config"
)

var RootCmd = &cobra.Command{
	Use:   "featurechain",
	Short: "Protocol feature activation node",
}

func parseConfig() (*config.Config, error) {
	return config.ParseConfig()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the featurechain version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(featurechain.FullVersion())
			return nil
		},
	}
}

func printEnv(env map[string]string) {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		val := env[key]
		fmt.Printf("%s = %s\n", key, val)
	}
}

func newEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show featurechain config settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := parseConfig()
			if err != nil {
				return err
			}

			printEnv(map[string]string{
				"version":           featurechain.FullVersion(),
				"git sha":           featurechain.GitSHA,
				"chain id":          cfg.ChainID,
				"db path":           cfg.DBPath(),
				"db backend":        cfg.DBBackend,
				"query server host": cfg.QueryServerHost,
				"custom features":   cfg.Features.CustomFeaturesFile,
				"allow bypass":      fmt.Sprint(cfg.Features.AllowBypass),
			})
			return nil
		},
	}
}

const configFilename = "featurechain.yaml"

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configs and data",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := parseConfig()
			if err != nil {
				return err
			}
			if _, err := os.Stat(configFilename); err == nil && !force {
				return errors.Errorf("%s already exists, use --force to overwrite it", configFilename)
			}
			if force {
				if err := os.RemoveAll(cfg.DBPath()); err != nil {
					return err
				}
			}
			// catch broken custom feature files before anything is written
			if _, err := cfg.LoadCatalog(); err != nil {
				return err
			}
			if err := cfg.WriteToFile(configFilename); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", configFilename)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Force re-initialization")
	return cmd
}

func main() {
	RootCmd.AddCommand(
		newVersionCommand(),
		newEnvCommand(),
		newInitCommand(),
		newRunCommand(),
		newFeaturesCommand(),
		newDBCommand(),
	)

	err := RootCmd.Execute()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
