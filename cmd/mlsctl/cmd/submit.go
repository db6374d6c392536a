package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YangYuS8/mlsmanager/pkg/api"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new job",
	Long: `Submit a new job to the cluster. The job starts out pending and the
scheduler places it on a node with enough free capacity.

Example:
  mlsctl submit --name "train-resnet" --image "pytorch/pytorch:2.1" --command "python train.py" --gpus 1
  mlsctl submit --name "prep" --type conda --image "mlenv" --command "python prep.py" --node gpu-node-01`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		jobType, _ := flags.GetString("type")
		image, _ := flags.GetString("image")
		command, _ := flags.GetString("command")
		workdir, _ := flags.GetString("workdir")
		nodeID, _ := flags.GetString("node")
		envPairs, _ := flags.GetStringSlice("env")
		volumes, _ := flags.GetStringArray("volume")
		cpus, _ := flags.GetInt("cpus")
		memory, _ := flags.GetInt("memory")
		gpus, _ := flags.GetInt("gpus")
		timeout, _ := flags.GetInt("timeout")

		url := viper.GetString("url")

		if name == "" {
			cmd.Println("Error: --name is required")
			return
		}
		if command == "" {
			cmd.Println("Error: --command is required")
			return
		}
		if jobType == "docker" && image == "" {
			cmd.Println("Error: --image is required for docker jobs")
			return
		}

		req := api.CreateJobRequest{
			Name:       name,
			JobType:    jobType,
			Command:    command,
			TimeoutSec: timeout,
		}
		if image != "" {
			req.Image = &image
		}
		if workdir != "" {
			req.WorkingDir = &workdir
		}
		if nodeID != "" {
			req.NodeID = &nodeID
		}
		if cpus > 0 {
			req.CPULimit = &cpus
		}
		if memory > 0 {
			req.MemoryLimitGB = &memory
		}
		if gpus > 0 {
			req.GPUCount = &gpus
		}
		if len(volumes) > 0 {
			req.Volumes = volumes
		}
		if len(envPairs) > 0 {
			env := make(map[string]string, len(envPairs))
			for _, pair := range envPairs {
				key, value, ok := strings.Cut(pair, "=")
				if !ok {
					cmd.Printf("Error: invalid --env value %q, expected KEY=VALUE\n", pair)
					return
				}
				env[key] = value
			}
			req.Env = env
		}

		client := NewMasterClient(url)
		result, err := client.CreateJob(req)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Job submitted!\nID: %s\nName: %s\nStatus: %s\n", result.ID, result.Name, result.Status)
	},
}

func init() {
	flags := submitCmd.Flags()
	flags.StringP("name", "n", "", "Name of the job (required)")
	flags.String("type", "docker", "Execution environment: docker, conda, venv or system")
	flags.StringP("image", "i", "", "Container image, conda env name or venv path")
	flags.StringP("command", "c", "", "Shell command to execute (required)")
	flags.String("workdir", "", "Working directory on the node")
	flags.String("node", "", "Pin the job to a specific node_id")
	flags.StringSliceP("env", "e", []string{}, "Environment variables as KEY=VALUE (repeatable)")
	flags.StringArrayP("volume", "v", []string{}, "Extra host:container mounts for docker jobs (repeatable)")
	flags.Int("cpus", 0, "CPU core limit")
	flags.Int("memory", 0, "Memory limit in GB")
	flags.Int("gpus", 0, "Number of GPUs to reserve")
	flags.Int("timeout", 0, "Timeout in seconds (default 3600)")

	rootCmd.AddCommand(submitCmd)
}
