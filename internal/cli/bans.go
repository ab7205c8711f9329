package cli

import (
	"context"
	"fmt"
	"strconv"

	"tgrelay/internal/bans"
	"tgrelay/internal/config"
	"tgrelay/internal/storage"

	"github.com/spf13/cobra"
)

// NewBansCmd 创建 bans 命令组
func NewBansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bans",
		Short: "Inspect and edit the ban list",
		Long: `Inspect and edit the persisted ban list without a running bot.
A running bot with the file driver and bans.watch picks up edits.`,
	}

	cmd.AddCommand(newBansListCmd())
	cmd.AddCommand(newBansEditCmd("add", "Ban a user id"))
	cmd.AddCommand(newBansEditCmd("remove", "Lift the ban of a user id"))

	return cmd
}

func newBansListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List banned user ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, closeFn, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			ids := reg.List()
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "No banned users.")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
}

func newBansEditCmd(op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <user id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			reg, closeFn, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			verb := "banned"
			if op == "add" {
				err = reg.Ban(id)
			} else {
				verb = "unbanned"
				err = reg.Unban(id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s (%d banned)\n", id, verb, reg.Len())
			return nil
		},
	}
}

// openRegistry loads the ban list from the configured store.
func openRegistry(cmd *cobra.Command) (*bans.Registry, func(), error) {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return nil, nil, errNoContext
	}
	cfg := cliCtx.Config
	log := *cliCtx.Log()

	var (
		store   bans.Store
		closeFn = func() {}
	)
	switch cfg.Bans.Driver {
	case "sqlite":
		db, err := storage.Open(context.Background(), cfg.Bans.DBPath)
		if err != nil {
			return nil, nil, err
		}
		store = storage.NewBanStore(db)
		closeFn = func() { db.Close() }
	case "file", "":
		path, err := config.ExpandPath(cfg.Bans.Path)
		if err != nil {
			return nil, nil, err
		}
		store = bans.NewFileStore(path, log)
	default:
		return nil, nil, &config.ConfigError{Field: "bans.driver", Message: fmt.Sprintf("unknown driver %q", cfg.Bans.Driver)}
	}

	reg := bans.NewRegistry(store, log)
	if err := reg.Load(); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("load bans: %w", err)
	}
	return reg, closeFn, nil
}
