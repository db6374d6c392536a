package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mlsctl",
	Short: "mlsctl is a command line tool for managing the mlsmanager cluster",
	Long: `mlsctl is the command-line interface for the MLSManager batch platform.

MLSManager schedules containerized and environment-based ML jobs across a
fleet of compute nodes. A single master owns the node registry and the job
queue; an agent on every node pulls assigned jobs and executes them.

Common workflows:

  Submit a docker job:
    mlsctl submit --name "train-resnet" --image "pytorch/pytorch:2.1" --command "python train.py" --gpus 1

  Submit to a specific node:
    mlsctl submit --name "prep" --type system --command "python prep.py" --node gpu-node-01

  Check job status:
    mlsctl status <job-id>

  Tail logs:
    mlsctl logs <job-id> --follow

  Inspect the fleet:
    mlsctl nodes
    mlsctl stats

Configuration:
  Set the master endpoint via a flag, environment variable or config file:
    MLS_URL    Master API endpoint (default: http://localhost:8000)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".mlsctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".mlsctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "MLS_VARNAME"
	viper.SetEnvPrefix("MLS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mlsctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8000", "MLSManager master URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}
