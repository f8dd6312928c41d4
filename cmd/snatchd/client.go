package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opensnatch/snatchd/pkg/client"
	"github.com/opensnatch/snatchd/pkg/types"
)

var (
	serverAddr string
	apiKeyFlag string
)

func apiClient() *client.Client {
	return client.New(serverAddr, apiKeyFlag)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:8264", "snatchd server address")
	rootCmd.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", "API key for Bearer authentication")

	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(instanceCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(configCmd)

	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	profileAddCmd.Flags().String("tenancy", "", "Tenancy OCID")
	profileAddCmd.Flags().String("user", "", "User OCID")
	profileAddCmd.Flags().String("region", "", "Region identifier")
	profileAddCmd.Flags().String("fingerprint", "", "API key fingerprint")
	profileAddCmd.Flags().String("key-file", "", "Path to the API private key")
	profileAddCmd.Flags().String("ssh-key", "", "Default SSH public key for new instances")
	profileAddCmd.MarkFlagRequired("tenancy")
	profileAddCmd.MarkFlagRequired("user")
	profileAddCmd.MarkFlagRequired("region")
	profileAddCmd.MarkFlagRequired("fingerprint")

	instanceCmd.AddCommand(instanceListCmd)
	instanceCmd.AddCommand(instanceLaunchCmd)
	instanceCmd.AddCommand(instanceActionCmd)
	instanceLaunchCmd.Flags().String("shape", "", "Instance shape")
	instanceLaunchCmd.Flags().Float32("ocpus", 0, "OCPU count for Flex shapes")
	instanceLaunchCmd.Flags().Float32("memory", 0, "Memory in GBs for Flex shapes")
	instanceLaunchCmd.Flags().String("os", "Canonical Ubuntu", "Operating system")
	instanceLaunchCmd.Flags().String("os-version", "22.04", "Operating system version")
	instanceLaunchCmd.Flags().Int("count", 1, "Number of instances")
	instanceLaunchCmd.Flags().Int("min-delay", 0, "Minimum retry delay in seconds")
	instanceLaunchCmd.Flags().Int("max-delay", 0, "Maximum retry delay in seconds")
	instanceLaunchCmd.Flags().String("name-prefix", "", "Display name prefix")
	instanceLaunchCmd.Flags().Bool("bind-domain", false, "Bind a DNS record on success")
	instanceLaunchCmd.MarkFlagRequired("shape")
	instanceActionCmd.Flags().String("new-name", "", "New display name (rename)")
	instanceActionCmd.Flags().String("shape", "", "Target shape (reshape)")
	instanceActionCmd.Flags().Int64("size", 0, "Target boot volume size in GB (resize)")

	taskCmd.AddCommand(taskRunningCmd)
	taskCmd.AddCommand(taskCompletedCmd)
	taskCmd.AddCommand(taskStatusCmd)
	taskCmd.AddCommand(taskStopCmd)
	taskCmd.AddCommand(taskResumeCmd)
	taskCmd.AddCommand(taskDeleteCmd)
	taskCompletedCmd.Flags().Int("limit", 20, "Maximum rows to return")

	configCmd.AddCommand(configTelegramCmd)
	configCmd.AddCommand(configCloudflareCmd)
	configCmd.AddCommand(configSSHKeyCmd)
	configTelegramCmd.Flags().String("bot-token", "", "Telegram bot token")
	configTelegramCmd.Flags().String("chat-id", "", "Telegram chat id")
	configCloudflareCmd.Flags().String("api-token", "", "Cloudflare API token")
	configCloudflareCmd.Flags().String("zone-id", "", "Cloudflare zone id")
	configCloudflareCmd.Flags().String("domain", "", "Base domain for bindings")
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage tenant profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profile aliases in display order",
	RunE: func(cmd *cobra.Command, args []string) error {
		aliases, err := apiClient().ListProfiles(cmd.Context())
		if err != nil {
			return err
		}
		if len(aliases) == 0 {
			fmt.Println("No profiles configured.")
			return nil
		}
		for _, alias := range aliases {
			fmt.Println(alias)
		}
		return nil
	},
}

var profileAddCmd = &cobra.Command{
	Use:   "add [alias]",
	Short: "Create or update a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenancy, _ := cmd.Flags().GetString("tenancy")
		user, _ := cmd.Flags().GetString("user")
		region, _ := cmd.Flags().GetString("region")
		fingerprint, _ := cmd.Flags().GetString("fingerprint")
		keyFile, _ := cmd.Flags().GetString("key-file")
		sshKey, _ := cmd.Flags().GetString("ssh-key")

		// The key is read here and stored inline so the server never
		// depends on a path local to this machine.
		var keyContent string
		if keyFile != "" {
			data, err := os.ReadFile(keyFile)
			if err != nil {
				return fmt.Errorf("failed to read key file: %w", err)
			}
			keyContent = string(data)
		}

		err := apiClient().UpsertProfile(cmd.Context(), args[0], &types.Profile{
			TenancyID:           tenancy,
			UserID:              user,
			Region:              region,
			Fingerprint:         fingerprint,
			KeyContent:          keyContent,
			DefaultSSHPublicKey: sshKey,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Profile %s saved\n", args[0])
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete [alias]",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient().DeleteProfile(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Profile %s deleted\n", args[0])
		return nil
	},
}

var instanceCmd = &cobra.Command{
	Use:   "instance",
	Short: "Manage compute instances",
}

var instanceListCmd = &cobra.Command{
	Use:   "list [alias]",
	Short: "List a profile's instances",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		summaries, err := apiClient().ListInstances(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("No instances.")
			return nil
		}
		fmt.Printf("%-24s %-12s %-24s %-16s %s\n", "NAME", "STATE", "SHAPE", "PUBLIC IP", "ID")
		for _, inst := range summaries {
			fmt.Printf("%-24s %-12s %-24s %-16s %s\n",
				inst.DisplayName, inst.LifecycleState, inst.Shape, inst.PublicIP, inst.ID)
		}
		return nil
	},
}

var instanceLaunchCmd = &cobra.Command{
	Use:   "launch [alias]",
	Short: "Start snatch tasks for new instances",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		shape, _ := cmd.Flags().GetString("shape")
		ocpus, _ := cmd.Flags().GetFloat32("ocpus")
		memory, _ := cmd.Flags().GetFloat32("memory")
		osName, _ := cmd.Flags().GetString("os")
		osVersion, _ := cmd.Flags().GetString("os-version")
		count, _ := cmd.Flags().GetInt("count")
		minDelay, _ := cmd.Flags().GetInt("min-delay")
		maxDelay, _ := cmd.Flags().GetInt("max-delay")
		prefix, _ := cmd.Flags().GetString("name-prefix")
		bindDomain, _ := cmd.Flags().GetBool("bind-domain")

		ids, err := apiClient().LaunchInstance(cmd.Context(), args[0], types.SnatchDetails{
			Shape:             shape,
			OCPUs:             ocpus,
			MemoryInGBs:       memory,
			OS:                osName,
			OSVersion:         osVersion,
			InstanceCount:     count,
			MinDelay:          minDelay,
			MaxDelay:          maxDelay,
			DisplayNamePrefix: prefix,
			AutoBindDomain:    bindDomain,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ %d snatch task(s) started: %s\n", len(ids), strings.Join(ids, ", "))
		return nil
	},
}

var instanceActionCmd = &cobra.Command{
	Use:   "action [alias] [instance-id] [start|stop|restart|terminate|changeip|assignipv6|rename|reshape|resize]",
	Short: "Run an action against an instance",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]interface{}{}
		if v, _ := cmd.Flags().GetString("new-name"); v != "" {
			params["new_name"] = v
		}
		if v, _ := cmd.Flags().GetString("shape"); v != "" {
			params["shape"] = v
		}
		if v, _ := cmd.Flags().GetInt64("size"); v > 0 {
			params["size_in_gbs"] = v
		}

		taskID, err := apiClient().InstanceAction(cmd.Context(), args[0], args[1], args[2], params)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Action queued as task %s\n", taskID)
		return nil
	},
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and control tasks",
}

func printTasks(tasks []types.Task) {
	if len(tasks) == 0 {
		fmt.Println("No tasks.")
		return
	}
	fmt.Printf("%-36s %-8s %-8s %-12s %s\n", "ID", "TYPE", "STATUS", "ACCOUNT", "NAME")
	for _, task := range tasks {
		fmt.Printf("%-36s %-8s %-8s %-12s %s\n",
			task.ID, task.Type, task.Status, task.AccountAlias, task.Name)
	}
}

var taskRunningCmd = &cobra.Command{
	Use:   "running",
	Short: "List running and paused snatch tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := apiClient().RunningSnatches(cmd.Context())
		if err != nil {
			return err
		}
		printTasks(tasks)
		return nil
	},
}

var taskCompletedCmd = &cobra.Command{
	Use:   "completed",
	Short: "List finished snatch tasks, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		tasks, err := apiClient().CompletedSnatches(cmd.Context(), limit)
		if err != nil {
			return err
		}
		printTasks(tasks)
		return nil
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show one task's status and result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, result, taskType, err := apiClient().TaskStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Type:   %s\nStatus: %s\n", taskType, status)
		if progress := types.ParseTaskResult(result); progress.Progress != nil {
			fmt.Printf("Attempt: %d\nLast:    %s\n",
				progress.Progress.AttemptCount, progress.Progress.LastMessage)
		} else if result != "" {
			fmt.Printf("Result:\n%s\n", result)
		}
		return nil
	},
}

var taskStopCmd = &cobra.Command{
	Use:   "stop [task-id]",
	Short: "Pause a running snatch task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient().StopTask(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("✓ Task stopped")
		return nil
	},
}

var taskResumeCmd = &cobra.Command{
	Use:   "resume [task-id...]",
	Short: "Resume paused snatch tasks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resumed, failed, err := apiClient().ResumeTasks(cmd.Context(), args)
		if err != nil {
			return err
		}
		for _, id := range resumed {
			fmt.Printf("✓ %s resumed\n", id)
		}
		for id, reason := range failed {
			fmt.Printf("✗ %s: %s\n", id, reason)
		}
		return nil
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete [task-id]",
	Short: "Delete a finished or paused task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient().DeleteTask(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("✓ Task deleted")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage notification and DNS settings",
}

var configTelegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Show or set the Telegram notification config",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		token, _ := cmd.Flags().GetString("bot-token")
		chatID, _ := cmd.Flags().GetString("chat-id")
		if token != "" || chatID != "" {
			err := apiClient().SetTelegramSettings(ctx, &types.TelegramSettings{
				BotToken: token, ChatID: chatID,
			})
			if err != nil {
				return err
			}
			fmt.Println("✓ Telegram config saved")
			return nil
		}
		cfg, err := apiClient().TelegramSettings(ctx)
		if err != nil {
			return err
		}
		if cfg.BotToken == "" {
			fmt.Println("Telegram is not configured.")
			return nil
		}
		fmt.Printf("Chat ID: %s\n", cfg.ChatID)
		return nil
	},
}

var configCloudflareCmd = &cobra.Command{
	Use:   "cloudflare",
	Short: "Show or set the Cloudflare DNS config",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		token, _ := cmd.Flags().GetString("api-token")
		zoneID, _ := cmd.Flags().GetString("zone-id")
		domain, _ := cmd.Flags().GetString("domain")
		if token != "" || zoneID != "" || domain != "" {
			err := apiClient().SetCloudflareSettings(ctx, &types.CloudflareSettings{
				APIToken: token, ZoneID: zoneID, Domain: domain,
			})
			if err != nil {
				return err
			}
			fmt.Println("✓ Cloudflare config saved")
			return nil
		}
		cfg, err := apiClient().CloudflareSettings(ctx)
		if err != nil {
			return err
		}
		if cfg.Domain == "" {
			fmt.Println("Cloudflare is not configured.")
			return nil
		}
		fmt.Printf("Domain: %s\nZone:   %s\n", cfg.Domain, cfg.ZoneID)
		return nil
	},
}

var configSSHKeyCmd = &cobra.Command{
	Use:   "ssh-key [public-key]",
	Short: "Set the default SSH public key for new profiles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient().SetDefaultSSHKey(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("✓ Default SSH key saved")
		return nil
	},
}
