package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs",
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")
		url := viper.GetString("url")

		client := NewMasterClient(url)
		jobs, err := client.ListJobs(status)
		if err != nil {
			printClientError(cmd, err)
			return
		}

		if len(jobs) == 0 {
			cmd.Println("No jobs found")
			return
		}

		cmd.Printf("%-36s  %-20s  %-12s  %-15s  %s\n", "ID", "NAME", "STATUS", "NODE", "CREATED")
		for _, job := range jobs {
			node := "-"
			if job.NodeID != nil {
				node = *job.NodeID
			}
			name := job.Name
			if len(name) > 20 {
				name = name[:17] + "..."
			}
			cmd.Printf("%-36s  %-20s  %-12s  %-15s  %s\n",
				job.ID, name, colorizeStatus(job.Status), node, relativeTime(job.CreatedAt)+" ago")
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [job_id]",
	Short: "Cancel a job",
	Long:  `Request cancellation of a job. Pending and queued jobs are cancelled immediately; for running jobs the node's agent tears the process down on its next poll.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		url := viper.GetString("url")

		client := NewMasterClient(url)
		job, err := client.CancelJob(args[0])
		if err != nil {
			printClientError(cmd, err)
			return
		}

		cmd.Printf("✓ Job %s cancelled\n", job.ID)
	},
}

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Trigger a scheduling pass",
	Long:  `Run one scheduling pass immediately instead of waiting for the next periodic tick. Prints how many pending jobs were placed.`,
	Run: func(cmd *cobra.Command, args []string) {
		url := viper.GetString("url")

		client := NewMasterClient(url)
		result, err := client.AssignJobs()
		if err != nil {
			printClientError(cmd, err)
			return
		}

		cmd.Printf("Assigned %d job(s)\n", result.Assigned)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cluster statistics",
	Run: func(cmd *cobra.Command, args []string) {
		url := viper.GetString("url")
		client := NewMasterClient(url)

		nodeStats, err := client.NodeStats()
		if err != nil {
			printClientError(cmd, err)
			return
		}
		jobStats, err := client.JobStats()
		if err != nil {
			printClientError(cmd, err)
			return
		}

		cmd.Printf("%sNodes%s\n", colorBold, colorReset)
		cmd.Printf("  Total:    %d (%s%d online%s, %s%d offline%s)\n",
			nodeStats.TotalNodes,
			colorGreen, nodeStats.OnlineNodes, colorReset,
			colorRed, nodeStats.OfflineNodes, colorReset)
		cmd.Printf("  Capacity: %d CPU, %d GB memory, %d GPU\n",
			nodeStats.TotalCPU, nodeStats.TotalMemoryGB, nodeStats.TotalGPU)
		cmd.Printf("  Storage:  %d/%d GB used\n", nodeStats.UsedStorageGB, nodeStats.TotalStorageGB)

		cmd.Printf("%sJobs%s\n", colorBold, colorReset)
		cmd.Printf("  Total:    %d\n", jobStats.TotalJobs)
		cmd.Printf("  Waiting:  %d pending, %d queued\n", jobStats.PendingJobs, jobStats.QueuedJobs)
		cmd.Printf("  Running:  %d\n", jobStats.RunningJobs)
		cmd.Printf("  Finished: %s%d completed%s, %s%d failed%s, %d cancelled\n",
			colorGreen, jobStats.CompletedJobs, colorReset,
			colorRed, jobStats.FailedJobs, colorReset,
			jobStats.CancelledJobs)
	},
}

func printClientError(cmd *cobra.Command, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("Error: %v\n", err)
}

func init() {
	jobsCmd.Flags().StringP("status", "s", "", "Filter by status (pending, queued, running, completed, failed, cancelled)")

	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(statsCmd)
}
