package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edugame/xpsync/internal/daemon"
)

func init() {
	userAddCmd.Flags().BoolVar(&userSave, "save", false, "Store the new token in config.toml")
	userCmd.AddCommand(userAddCmd, userListCmd)
	rootCmd.AddCommand(userCmd)
}

var userSave bool

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users of the reference stats gateway",
}

var userAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a user and print its bearer token",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List users",
	Args:    cobra.NoArgs,
	RunE:    runUserList,
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	u, token, err := d.Service.CreateUser(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\nToken: %s\n", u.Name, u.ID, token)
	fmt.Fprintln(cmd.OutOrStdout(), "The token is shown once; store it now.")

	if userSave {
		c := cfg
		c.Gateway.Token = token
		if err := daemon.SaveConfig(c); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved to %s\n", daemon.ConfigPath())
	}
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	users, err := d.Service.ListUsers()
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No users. Run 'xpsync user add <name>' to create one.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.Name, u.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
