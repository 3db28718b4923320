package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/weftlang/weft/pkg/stores"
)

func newUserCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage runner service accounts",
		Long: `Administer the accounts stored in a runner service database. These
commands operate on the database file directly; use them on the host running
weft serve, typically to bootstrap the first admin account.`,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "weft.db", "runner service database path")

	cmd.AddCommand(newUserAddCommand(&dbPath))
	cmd.AddCommand(newUserListCommand(&dbPath))
	cmd.AddCommand(newUserUpdateCommand(&dbPath))
	cmd.AddCommand(newUserRemoveCommand(&dbPath))

	return cmd
}

func newUserAddCommand(dbPath *string) *cobra.Command {
	var (
		userPassword string
		perms        string
		scope        string
	)

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an account",
		Example: `  # Bootstrap an admin account
  weft user add admin --perms all --user-password s3cret

  # A publisher limited to one registry prefix
  weft user add ci --perms read,write --scope team --user-password token`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mask, ok := stores.ParsePerms(perms)
			if !ok {
				return fmt.Errorf("invalid permission list %q", perms)
			}
			return withStore(cmd.Context(), *dbPath, func(ctx context.Context, store *stores.SQLiteStore) error {
				u, err := store.CreateUser(ctx, args[0], userPassword, mask, scope)
				if err != nil {
					return err
				}
				fmt.Printf("created %s (%s)\n", u.Username, u.Perms)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userPassword, "user-password", "", "password for the new account")
	cmd.Flags().StringVar(&perms, "perms", "exec", "comma-separated permissions (read,write,delete,exec,admin,all)")
	cmd.Flags().StringVar(&scope, "scope", "", "registry path prefix the account may publish under")
	_ = cmd.MarkFlagRequired("user-password")

	return cmd
}

func newUserListCommand(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), *dbPath, func(ctx context.Context, store *stores.SQLiteStore) error {
				users, err := store.ListUsers(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "USERNAME\tPERMS\tSCOPE\tCREATED")
				for _, u := range users {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
						u.Username, u.Perms, u.Scope, u.CreatedAt.Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}
}

func newUserUpdateCommand(dbPath *string) *cobra.Command {
	var (
		userPassword string
		perms        string
		scope        string
	)

	cmd := &cobra.Command{
		Use:   "update <username>",
		Short: "Change an account's permissions, scope, or password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *dbPath, func(ctx context.Context, store *stores.SQLiteStore) error {
				current, err := store.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				mask := current.Perms
				if perms != "" {
					parsed, ok := stores.ParsePerms(perms)
					if !ok {
						return fmt.Errorf("invalid permission list %q", perms)
					}
					mask = parsed
				}
				newScope := current.Scope
				if cmd.Flags().Changed("scope") {
					newScope = scope
				}
				if err := store.UpdateUser(ctx, args[0], mask, newScope); err != nil {
					return err
				}
				if userPassword != "" {
					if err := store.SetPassword(ctx, args[0], userPassword); err != nil {
						return err
					}
				}
				fmt.Printf("updated %s (%s)\n", args[0], mask)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userPassword, "user-password", "", "new password")
	cmd.Flags().StringVar(&perms, "perms", "", "new comma-separated permissions")
	cmd.Flags().StringVar(&scope, "scope", "", "new registry path prefix")

	return cmd
}

func newUserRemoveCommand(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <username>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *dbPath, func(ctx context.Context, store *stores.SQLiteStore) error {
				if err := store.DeleteUser(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("removed %s\n", args[0])
				return nil
			})
		},
	}
}

// withStore opens the service database, runs fn, and closes it.
func withStore(ctx context.Context, path string, fn func(context.Context, *stores.SQLiteStore) error) error {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	return fn(ctx, store)
}
