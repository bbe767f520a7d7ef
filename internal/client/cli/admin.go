package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/bucketkeeper/internal/client"
	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/spf13/cobra"
)

func (a *App) newNamespaceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "namespace", Short: "Manage namespaces"}

	var meta []string
	create := &cobra.Command{
		Use:   "create NAMESPACE",
		Short: "Create a namespace; the caller becomes its manager",
		Args:  cobra.ExactArgs(1),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ns, err := parseID(args[0], "namespace")
			if err != nil {
				return err
			}
			md, err := ParseMetadata(meta)
			if err != nil {
				return err
			}
			tx, err := c.CreateNamespace(ctx, ns, md)
			if err != nil {
				return err
			}
			a.printTx(cmd, fmt.Sprintf("namespace %d created", ns), tx)
			return nil
		}),
	}
	create.Flags().StringArrayVar(&meta, "meta", nil, "metadata as name=value, repeatable")

	remove := &cobra.Command{
		Use:   "remove NAMESPACE",
		Short: "Remove a namespace (governance)",
		Args:  cobra.ExactArgs(1),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ns, err := parseID(args[0], "namespace")
			if err != nil {
				return err
			}
			tx, err := c.RemoveNamespace(ctx, ns)
			if err != nil {
				return err
			}
			a.printTx(cmd, fmt.Sprintf("namespace %d removed", ns), tx)
			return nil
		}),
	}

	cmd.AddCommand(create, remove)
	return cmd
}

func (a *App) newBucketCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "bucket", Short: "Manage buckets"}

	var meta []string
	create := &cobra.Command{
		Use:   "create NAMESPACE",
		Short: "Create a bucket in a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ns, err := parseID(args[0], "namespace")
			if err != nil {
				return err
			}
			md, err := ParseMetadata(meta)
			if err != nil {
				return err
			}
			id, tx, err := c.CreateBucket(ctx, ns, md)
			if err != nil {
				return err
			}
			a.printTx(cmd, fmt.Sprintf("bucket %d created in namespace %d", id, ns), tx)
			return nil
		}),
	}
	create.Flags().StringArrayVar(&meta, "meta", nil, "metadata as name=value, repeatable")

	remove := &cobra.Command{
		Use:   "remove NAMESPACE BUCKET",
		Short: "Remove a bucket (governance)",
		Args:  cobra.ExactArgs(2),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ids, err := parseIDs(args, "namespace", "bucket")
			if err != nil {
				return err
			}
			tx, err := c.RemoveBucket(ctx, ids[0], ids[1])
			if err != nil {
				return err
			}
			a.printTx(cmd, fmt.Sprintf("bucket %d removed", ids[1]), tx)
			return nil
		}),
	}

	pause := &cobra.Command{
		Use:   "pause NAMESPACE BUCKET",
		Short: "Stop writes to a bucket until the next key rotation",
		Args:  cobra.ExactArgs(2),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ids, err := parseIDs(args, "namespace", "bucket")
			if err != nil {
				return err
			}
			tx, err := c.PauseBucketWrites(ctx, ids[0], ids[1])
			if err != nil {
				return err
			}
			a.printTx(cmd, fmt.Sprintf("bucket %d paused", ids[1]), tx)
			return nil
		}),
	}

	cmd.AddCommand(create, remove, pause)
	return cmd
}

// roleOps maps a role name to its add and remove operations.
type roleOps struct {
	add    func(c *client.Client, ctx context.Context, ns, bucket uint64, account string) (string, error)
	remove func(c *client.Client, ctx context.Context, ns, bucket uint64, account string) (string, error)
	bucket bool
}

var roles = map[string]roleOps{
	"manager": {
		add: func(c *client.Client, ctx context.Context, ns, _ uint64, acc string) (string, error) {
			return c.AddManager(ctx, ns, acc)
		},
		remove: func(c *client.Client, ctx context.Context, ns, _ uint64, acc string) (string, error) {
			return c.RemoveManager(ctx, ns, acc)
		},
	},
	"admin": {
		add:    (*client.Client).AddAdmin,
		remove: (*client.Client).RemoveAdmin,
		bucket: true,
	},
	"contributor": {
		add:    (*client.Client).AddContributor,
		remove: (*client.Client).RemoveContributor,
		bucket: true,
	},
}

func (a *App) newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Grant or revoke manager, admin and contributor roles",
		Long: `Roles:
  manager      role add manager NAMESPACE ACCOUNT
  admin        role add admin NAMESPACE BUCKET ACCOUNT
  contributor  role add contributor NAMESPACE BUCKET ACCOUNT`,
	}

	run := func(adding bool) func(context.Context, *cobra.Command, *client.Client, []string) error {
		return func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ops, ok := roles[args[0]]
			if !ok {
				return fmt.Errorf("%w: unknown role %q", common.ErrConfiguration, args[0])
			}
			want := 3
			if ops.bucket {
				want = 4
			}
			if len(args) != want {
				return fmt.Errorf("%w: role %s takes %d arguments", common.ErrConfiguration, args[0], want-1)
			}

			ns, err := parseID(args[1], "namespace")
			if err != nil {
				return err
			}
			var bucket uint64
			if ops.bucket {
				if bucket, err = parseID(args[2], "bucket"); err != nil {
					return err
				}
			}
			account := args[len(args)-1]

			op, verb := ops.add, "granted to"
			if !adding {
				op, verb = ops.remove, "revoked from"
			}
			tx, err := op(c, ctx, ns, bucket, account)
			if err != nil {
				return err
			}
			a.printTx(cmd, fmt.Sprintf("%s %s %s", args[0], verb, account), tx)
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add ROLE NAMESPACE [BUCKET] ACCOUNT",
			Short: "Grant a role",
			Args:  cobra.RangeArgs(3, 4),
			RunE:  a.withClient(run(true)),
		},
		&cobra.Command{
			Use:   "remove ROLE NAMESPACE [BUCKET] ACCOUNT",
			Short: "Revoke a role",
			Args:  cobra.RangeArgs(3, 4),
			RunE:  a.withClient(run(false)),
		},
	)
	return cmd
}

func (a *App) newTagCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tag", Short: "Manage bucket tags"}
	cmd.AddCommand(&cobra.Command{
		Use:   "create BUCKET TAG",
		Short: "Define a tag messages can carry",
		Args:  cobra.ExactArgs(2),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			bucket, err := parseID(args[0], "bucket")
			if err != nil {
				return err
			}
			tx, err := c.CreateTag(ctx, bucket, args[1])
			if err != nil {
				return err
			}
			a.printTx(cmd, fmt.Sprintf("tag %q created on bucket %d", args[1], bucket), tx)
			return nil
		}),
	})
	return cmd
}
