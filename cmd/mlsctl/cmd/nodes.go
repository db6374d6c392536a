package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YangYuS8/mlsmanager/pkg/api"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List registered nodes",
	Run: func(cmd *cobra.Command, args []string) {
		url := viper.GetString("url")

		client := NewMasterClient(url)
		nodes, err := client.ListNodes()
		if err != nil {
			printClientError(cmd, err)
			return
		}

		if len(nodes) == 0 {
			cmd.Println("No nodes registered")
			return
		}

		cmd.Printf("%-20s  %-21s  %-10s  %-7s  %-5s  %-5s  %s\n",
			"NODE", "ADDRESS", "STATUS", "ACTIVE", "CPU", "GPU", "LAST HEARTBEAT")
		for _, n := range nodes {
			active := "yes"
			if !n.IsActive {
				active = "no"
			}
			cpu := "-"
			if n.CPUCount != nil {
				cpu = strconv.Itoa(*n.CPUCount)
			}
			gpu := "-"
			if n.GPUCount != nil {
				gpu = strconv.Itoa(*n.GPUCount)
			}
			beat := "-"
			if n.LastHeartbeat != nil {
				beat = relativeTime(*n.LastHeartbeat) + " ago"
			}
			cmd.Printf("%-20s  %-21s  %-10s  %-7s  %-5s  %-5s  %s\n",
				n.NodeID, addr(n), colorizeNodeStatus(n.Status), active, cpu, gpu, beat)
		}
	},
}

var nodeCmd = &cobra.Command{
	Use:   "node [node_id]",
	Short: "Show node details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		url := viper.GetString("url")

		client := NewMasterClient(url)
		n, err := client.GetNode(args[0])
		if err != nil {
			printClientError(cmd, err)
			return
		}

		cmd.Printf("%sNode Details%s\n", colorBold, colorReset)
		cmd.Println("──────────────────────────────")
		cmd.Printf("%sNode ID:%s     %s\n", colorDim, colorReset, n.NodeID)
		cmd.Printf("%sName:%s        %s\n", colorDim, colorReset, n.Name)
		cmd.Printf("%sAddress:%s     %s\n", colorDim, colorReset, addr(*n))
		cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeNodeStatus(n.Status))
		cmd.Printf("%sActive:%s      %t\n", colorDim, colorReset, n.IsActive)
		if n.CPUCount != nil {
			cmd.Printf("%sCPU:%s         %d cores\n", colorDim, colorReset, *n.CPUCount)
		}
		if n.MemoryTotalGB != nil {
			cmd.Printf("%sMemory:%s      %d GB\n", colorDim, colorReset, *n.MemoryTotalGB)
		}
		if n.GPUCount != nil {
			cmd.Printf("%sGPU:%s         %d\n", colorDim, colorReset, *n.GPUCount)
			if n.GPUInfo != nil {
				cmd.Printf("%sGPU Info:%s    %s\n", colorDim, colorReset, *n.GPUInfo)
			}
		}
		if n.StorageTotalGB != nil && n.StorageUsedGB != nil {
			cmd.Printf("%sStorage:%s     %d/%d GB used\n", colorDim, colorReset, *n.StorageUsedGB, *n.StorageTotalGB)
		}
		cmd.Printf("%sHeartbeat:%s   %s\n", colorDim, colorReset, formatTimeWithRelative(n.LastHeartbeat))
	},
}

var drainCmd = &cobra.Command{
	Use:   "drain [node_id]",
	Short: "Drain or undrain a node",
	Long:  `Drain marks a node inactive so the scheduler stops placing new jobs on it. Jobs already running on the node keep running. Use --undo to make the node schedulable again.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		undo, _ := cmd.Flags().GetBool("undo")
		url := viper.GetString("url")

		active := undo
		client := NewMasterClient(url)
		n, err := client.UpdateNode(args[0], api.UpdateNodeRequest{IsActive: &active})
		if err != nil {
			printClientError(cmd, err)
			return
		}

		if n.IsActive {
			cmd.Printf("✓ Node %s is schedulable again\n", n.NodeID)
		} else {
			cmd.Printf("✓ Node %s drained\n", n.NodeID)
		}
	},
}

func addr(n api.NodeResponse) string {
	return n.Host + ":" + strconv.Itoa(n.Port)
}

func colorizeNodeStatus(status string) string {
	switch status {
	case "online":
		return colorGreen + status + colorReset
	case "offline":
		return colorRed + status + colorReset
	default:
		return status
	}
}

func init() {
	drainCmd.Flags().Bool("undo", false, "Mark the node schedulable again")

	rootCmd.AddCommand(nodesCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(drainCmd)
}
