package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mod-update-notifier/db"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// communityCmd groups the per-server preference commands
var communityCmd = &cobra.Command{
	Use:   "community",
	Short: "Manages the notification preferences of a server",
}

// withCommunities opens the store and runs fn against it.
func withCommunities(fn func(ctx context.Context, store *db.CommunityStore, serverID int64, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		serverID, err := parseID(args[0])
		if err != nil {
			return err
		}
		s := openStores(configDir, false)
		defer s.Close()
		return fn(cmd.Context(), s.communities, serverID, args[1:])
	}
}

func init() {
	rootCmd.AddCommand(communityCmd)

	communityCmd.AddCommand(&cobra.Command{
		Use:   "show <server>",
		Short: "Prints the preferences and subscriptions of a server",
		Args:  cobra.ExactArgs(1),
		RunE: withCommunities(func(ctx context.Context, store *db.CommunityStore, serverID int64, _ []string) error {
			return showCommunity(ctx, os.Stdout, store, serverID)
		}),
	})
	communityCmd.AddCommand(&cobra.Command{
		Use:   "set-channel <server> <channel|none>",
		Short: "Sets the channel notifications are posted to",
		Args:  cobra.ExactArgs(2),
		RunE: withCommunities(func(ctx context.Context, store *db.CommunityStore, serverID int64, args []string) error {
			id, err := parseOptionalID(args[0])
			if err != nil {
				return err
			}
			return store.SetUpdatesChannel(ctx, serverID, id)
		}),
	})
	communityCmd.AddCommand(&cobra.Command{
		Use:   "set-role <server> <role|none>",
		Short: "Sets the role mentioned in every notification",
		Args:  cobra.ExactArgs(2),
		RunE: withCommunities(func(ctx context.Context, store *db.CommunityStore, serverID int64, args []string) error {
			id, err := parseOptionalID(args[0])
			if err != nil {
				return err
			}
			return store.SetModRole(ctx, serverID, id)
		}),
	})
	communityCmd.AddCommand(&cobra.Command{
		Use:   "changelog <server> <on|off>",
		Short: "Shows or hides changelogs in notifications",
		Args:  cobra.ExactArgs(2),
		RunE: withCommunities(func(ctx context.Context, store *db.CommunityStore, serverID int64, args []string) error {
			show, err := parseToggle(args[0])
			if err != nil {
				return err
			}
			return store.SetShowChangelog(ctx, serverID, show)
		}),
	})
	communityCmd.AddCommand(&cobra.Command{
		Use:   "metadata <server> <on|off>",
		Short: "Opts in or out of mod info change notifications",
		Args:  cobra.ExactArgs(2),
		RunE: withCommunities(func(ctx context.Context, store *db.CommunityStore, serverID int64, args []string) error {
			notify, err := parseToggle(args[0])
			if err != nil {
				return err
			}
			return store.SetNotifyMetadata(ctx, serverID, notify)
		}),
	})
	communityCmd.AddCommand(&cobra.Command{
		Use:   "subscribe <server> <mod|author> <name>",
		Short: "Restricts notifications to a mod or an author",
		Args:  cobra.ExactArgs(3),
		RunE: withCommunities(func(ctx context.Context, store *db.CommunityStore, serverID int64, args []string) error {
			return subscribe(ctx, store, serverID, args[0], args[1], true)
		}),
	})
	communityCmd.AddCommand(&cobra.Command{
		Use:   "unsubscribe <server> <mod|author> <name>",
		Short: "Removes a mod or author subscription",
		Args:  cobra.ExactArgs(3),
		RunE: withCommunities(func(ctx context.Context, store *db.CommunityStore, serverID int64, args []string) error {
			return subscribe(ctx, store, serverID, args[0], args[1], false)
		}),
	})
	communityCmd.AddCommand(&cobra.Command{
		Use:   "reset <server>",
		Short: "Forgets every preference and subscription of a server",
		Args:  cobra.ExactArgs(1),
		RunE: withCommunities(func(ctx context.Context, store *db.CommunityStore, serverID int64, _ []string) error {
			return store.ClearServer(ctx, serverID)
		}),
	})
}

func subscribe(ctx context.Context, store *db.CommunityStore, serverID int64, kind, name string, add bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name must not be empty")
	}
	switch strings.ToLower(kind) {
	case "mod":
		if add {
			return store.AddModSubscription(ctx, serverID, name)
		}
		return store.RemoveModSubscription(ctx, serverID, name)
	case "author":
		if add {
			return store.AddAuthorSubscription(ctx, serverID, name)
		}
		return store.RemoveAuthorSubscription(ctx, serverID, name)
	}
	return fmt.Errorf("unknown subscription kind %q, expected mod or author", kind)
}

func showCommunity(ctx context.Context, w io.Writer, store *db.CommunityStore, serverID int64) error {
	srv, err := store.GetServer(ctx, serverID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		srv = &db.Server{ServerID: serverID}
	} else if err != nil {
		return err
	}
	mods, authors, err := store.Subscriptions(ctx, serverID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "server:     %d\n", srv.ServerID)
	fmt.Fprintf(w, "channel:    %s\n", optionalID(srv.UpdatesChannel))
	fmt.Fprintf(w, "role:       %s\n", optionalID(srv.ModRole))
	fmt.Fprintf(w, "changelog:  %s\n", onOff(srv.ChangelogVisible()))
	fmt.Fprintf(w, "metadata:   %s\n", onOff(srv.NotifyMetadata))
	if len(mods) == 0 && len(authors) == 0 {
		fmt.Fprintln(w, "subscribed: every mod")
		return nil
	}
	fmt.Fprintf(w, "mods:       %s\n", strings.Join(mods, ", "))
	fmt.Fprintf(w, "authors:    %s\n", strings.Join(authors, ", "))
	return nil
}

func optionalID(id *int64) string {
	if id == nil {
		return "none"
	}
	return fmt.Sprint(*id)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
