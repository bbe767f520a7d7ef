package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/bucketkeeper/internal/client"
	"github.com/dmitrijs2005/bucketkeeper/internal/keys"
	"github.com/spf13/cobra"
)

func (a *App) newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "key", Short: "Manage bucket keys"}

	var readers []string
	rotate := &cobra.Command{
		Use:   "rotate NAMESPACE BUCKET",
		Short: "Generate the next bucket key and share the key history with readers",
		Args:  cobra.ExactArgs(2),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ids, err := parseIDs(args, "namespace", "bucket")
			if err != nil {
				return err
			}
			r, err := c.RotateBucketKey(ctx, ids[0], ids[1], readers, a.personalKey())
			if err != nil {
				return err
			}
			a.printTx(cmd, fmt.Sprintf("bucket %d key is now %d", ids[1], r.KeyID), r.ResumeTxHash)
			a.printTx(cmd, fmt.Sprintf("key history shared as message %d", r.Distribution.MessageID), r.Distribution.TxHash)
			return nil
		}),
	}
	rotate.Flags().StringArrayVar(&readers, "reader", nil, "reader DID, repeatable")

	var shareReaders []string
	share := &cobra.Command{
		Use:   "share NAMESPACE BUCKET",
		Short: "Share the current key history with more readers",
		Args:  cobra.ExactArgs(2),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ids, err := parseIDs(args, "namespace", "bucket")
			if err != nil {
				return err
			}
			km, err := c.RetrieveBucketKeys(ctx, ids[0], ids[1], a.personalKey())
			if err != nil {
				return err
			}
			pair, err := keys.FromSecret(*km.Current())
			if err != nil {
				return err
			}
			sent, err := c.ShareBucketKey(ctx, ids[0], ids[1], pair, shareReaders, a.personalKey())
			if err != nil {
				return err
			}
			a.printTx(cmd, fmt.Sprintf("key history shared as message %d", sent.MessageID), sent.TxHash)
			return nil
		}),
	}
	share.Flags().StringArrayVar(&shareReaders, "reader", nil, "reader DID, repeatable")

	list := &cobra.Command{
		Use:   "list NAMESPACE BUCKET",
		Short: "List the bucket keys readable with this identity",
		Args:  cobra.ExactArgs(2),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ids, err := parseIDs(args, "namespace", "bucket")
			if err != nil {
				return err
			}
			km, err := c.RetrieveBucketKeys(ctx, ids[0], ids[1], a.personalKey())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "distribution %d: keys %s (current %s)\n",
				km.MessageID, strings.Join(km.KeyIDs(), ", "), km.Current().KeyID)
			return nil
		}),
	}

	show := &cobra.Command{
		Use:   "show NAMESPACE BUCKET",
		Short: "Print the current bucket public key",
		Args:  cobra.ExactArgs(2),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ids, err := parseIDs(args, "namespace", "bucket")
			if err != nil {
				return err
			}
			pub, err := c.BucketPublicKey(ctx, ids[0], ids[1])
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(pub, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		}),
	}

	cmd.AddCommand(rotate, share, list, show)
	return cmd
}
