package cli

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/dmitrijs2005/bucketkeeper/internal/client"
	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/keys"
	"github.com/dmitrijs2005/bucketkeeper/internal/keystore"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/resolver"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the bucketctl command tree bound to a.
func (a *App) NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bucketctl",
		Short: "Encrypted bucket messaging over a ledger",
		Long: `bucketctl manages namespaces, buckets and bucket keys on a ledger node
and sends and reads encrypted bucket messages.

Global settings (-a, -k, -s, -b, -r, -d, -t, -f, -i, -v, -c) are read before
the command line is handed to the commands below.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.out)
	root.SetErr(a.out)

	root.AddCommand(
		a.newKeygenCmd(),
		a.newWhoamiCmd(),
		a.newNamespaceCmd(),
		a.newBucketCmd(),
		a.newRoleCmd(),
		a.newTagCmd(),
		a.newKeyCmd(),
		a.newSendCmd(),
		a.newSendFileCmd(),
		a.newHistoryCmd(),
		a.newFetchFileCmd(),
		a.newMessageCmd(),
		a.newShellCmd(),
	)
	return root
}

// withClient adapts fn to a cobra RunE that runs with a connected client.
func (a *App) withClient(fn func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := a.Client(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, cmd, c, args)
	}
}

func parseID(s, name string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", common.ErrConfiguration, name, s)
	}
	return id, nil
}

// parseIDs parses positional numeric arguments in order.
func parseIDs(args []string, names ...string) ([]uint64, error) {
	ids := make([]uint64, len(names))
	for i, name := range names {
		id, err := parseID(args[i], name)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (a *App) printTx(cmd *cobra.Command, what, txHash string) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s (tx %s)\n", what, txHash)
}

func (a *App) newKeygenCmd() *cobra.Command {
	var (
		did   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create an identity keystore",
		Long: `Generates a ledger account and a P-256 key-agreement key and stores them
encrypted under a passphrase. Without --did the identity is a did:key.
The printed DID document must be published for a non did:key identity.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.config.KeystorePath
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%w: keystore %s already exists", common.ErrConfiguration, path)
			}

			signer, err := ledger.GenerateKeyringSigner(rand.Reader)
			if err != nil {
				return err
			}
			pair, err := keys.Generate("")
			if err != nil {
				return err
			}
			pub := pair.Public.Key.(*ecdsa.PublicKey)
			if did == "" {
				mb, err := resolver.EncodeP256Multibase(pub)
				if err != nil {
					return err
				}
				did = "did:key:" + mb
			}
			pair.Secret.KeyID = did + "#key-agreement-1"

			pw, err := a.passphrase("New keystore passphrase")
			if err != nil {
				return err
			}
			defer common.WipeByteArray(pw)

			id := &keystore.Identity{DID: did, Key: pair.Secret, AccountSeed: signer.Seed()}
			if err := keystore.Save(path, pw, id); err != nil {
				return err
			}
			a.identity = id

			doc, err := resolver.NewDocument(did, pub)
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "keystore: %s\naccount:  %s\ndid:      %s\n%s\n", path, signer.Address(), did, b)
			return nil
		},
	}
	cmd.Flags().StringVar(&did, "did", "", "DID to bind the key to")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing keystore")
	return cmd
}

func (a *App) newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account and DID of the keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.loadIdentity()
			if err != nil {
				return err
			}
			signer, err := ledger.NewKeyringSigner(id.AccountSeed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account: %s\ndid:     %s\nkey:     %s\n", signer.Address(), id.DID, id.Key.KeyID)
			return nil
		},
	}
}
