package cli

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/client"
	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/didcomm"
	"github.com/dmitrijs2005/bucketkeeper/internal/filex"
	"github.com/dmitrijs2005/bucketkeeper/internal/registry"
	"github.com/spf13/cobra"
)

func addSendFlags(cmd *cobra.Command, opts *client.SendOptions) {
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "message tag defined on the bucket")
	cmd.Flags().StringArrayVar(&opts.To, "to", nil, "recipient DID, repeatable")
	cmd.Flags().DurationVar(&opts.Expires, "expires", 0, "message lifetime, e.g. 24h")
}

func (a *App) printSent(cmd *cobra.Command, s *client.Sent) {
	fmt.Fprintf(cmd.OutOrStdout(), "message %d stored as %s (digest %s, tx %s)\n", s.MessageID, s.StorageID, s.Digest, s.TxHash)
}

func (a *App) newSendCmd() *cobra.Command {
	var opts client.SendOptions
	cmd := &cobra.Command{
		Use:   "send NAMESPACE BUCKET [TEXT]",
		Short: "Send a text message; without TEXT it is read from stdin",
		Args:  cobra.RangeArgs(2, 3),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ids, err := parseIDs(args, "namespace", "bucket")
			if err != nil {
				return err
			}
			var text string
			if len(args) == 3 {
				text = args[2]
			} else if text, err = GetMultiline(a.in, "Message text", cmd.OutOrStdout()); err != nil {
				return err
			}
			if text == "" {
				return fmt.Errorf("%w: empty message", common.ErrInvalidMessage)
			}

			sent, err := c.SendDirectMessage(ctx, ids[0], ids[1], text, opts)
			if err != nil {
				return err
			}
			a.printSent(cmd, sent)
			return nil
		}),
	}
	addSendFlags(cmd, &opts)
	return cmd
}

// mediaType guesses a file's media type from its extension, then its content.
func mediaType(name string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

func (a *App) newSendFileCmd() *cobra.Command {
	var (
		opts        client.SendOptions
		description string
	)
	cmd := &cobra.Command{
		Use:   "send-file NAMESPACE BUCKET FILE...",
		Short: "Encrypt files and send them as a media message",
		Args:  cobra.MinimumNArgs(3),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ids, err := parseIDs(args, "namespace", "bucket")
			if err != nil {
				return err
			}
			files := make([]client.MediaFile, 0, len(args)-2)
			for _, path := range args[2:] {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				files = append(files, client.MediaFile{
					Filename:    filepath.Base(path),
					MediaType:   mediaType(path, data),
					Description: description,
					Data:        data,
				})
			}

			sent, err := c.SendMediaMessage(ctx, ids[0], ids[1], files, opts)
			if err != nil {
				return err
			}
			a.printSent(cmd, sent)
			return nil
		}),
	}
	addSendFlags(cmd, &opts)
	cmd.Flags().StringVar(&description, "description", "", "description of the files")
	return cmd
}

func (a *App) history(ctx context.Context, c *client.Client, ns, bucket uint64) ([]client.HistoryEntry, *registry.KeyMap, error) {
	return c.RetrieveBucketHistory(ctx, ns, bucket, a.personalKey())
}

func formatEntry(w io.Writer, e client.HistoryEntry) {
	head := fmt.Sprintf("#%d %s", e.MessageID, e.Contributor)
	if e.Tag != "" {
		head += " [" + e.Tag + "]"
	}
	if e.Err != nil {
		fmt.Fprintf(w, "%s <unreadable: %v>\n", head, e.Err)
		return
	}

	m := e.Message
	if m.CreatedTime > 0 {
		head += " " + time.Unix(m.CreatedTime, 0).UTC().Format(time.RFC3339)
	}
	if body, ok := m.Direct(); ok {
		fmt.Fprintf(w, "%s: %s\n", head, body.Content)
		return
	}
	if body, ok := m.Media(); ok {
		fmt.Fprintf(w, "%s: %d file(s)\n", head, len(body.Items))
		for _, item := range body.Items {
			if att, ok := m.Attachment(item.AttachmentID); ok {
				fmt.Fprintf(w, "    %s  %s  %s\n", item.ID, att.Filename, att.MediaType)
			}
		}
		return
	}
	fmt.Fprintf(w, "%s: %s\n", head, m.Type())
}

func (a *App) newHistoryCmd() *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "history NAMESPACE BUCKET",
		Short: "Decrypt and print the bucket messages",
		Args:  cobra.ExactArgs(2),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ids, err := parseIDs(args, "namespace", "bucket")
			if err != nil {
				return err
			}
			h, _, err := a.history(ctx, c, ids[0], ids[1])
			if err != nil {
				return err
			}
			for _, e := range h {
				if tag != "" && e.Tag != tag {
					continue
				}
				formatEntry(cmd.OutOrStdout(), e)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&tag, "tag", "", "only messages with this tag")
	return cmd
}

func findMessage(h []client.HistoryEntry, id uint64) (*didcomm.Message, error) {
	for _, e := range h {
		if e.MessageID != id {
			continue
		}
		if e.Err != nil {
			return nil, e.Err
		}
		return e.Message, nil
	}
	return nil, fmt.Errorf("%w: message %d", common.ErrNotFound, id)
}

func (a *App) newFetchFileCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "fetch-file NAMESPACE BUCKET MESSAGE ITEM",
		Short: "Download and decrypt one file of a media message",
		Args:  cobra.ExactArgs(4),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ids, err := parseIDs(args, "namespace", "bucket", "message")
			if err != nil {
				return err
			}
			h, km, err := a.history(ctx, c, ids[0], ids[1])
			if err != nil {
				return err
			}
			msg, err := findMessage(h, ids[2])
			if err != nil {
				return err
			}
			data, err := c.DecryptAttachment(ctx, msg, args[3], km)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := filex.WriteFileAtomic(output, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(data), output)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, stdout when empty")
	return cmd
}

func (a *App) newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "message", Short: "Inspect or remove single messages"}

	show := &cobra.Command{
		Use:   "show NAMESPACE BUCKET MESSAGE",
		Short: "Print one decrypted message with its headers",
		Args:  cobra.ExactArgs(3),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ids, err := parseIDs(args, "namespace", "bucket", "message")
			if err != nil {
				return err
			}
			h, _, err := a.history(ctx, c, ids[0], ids[1])
			if err != nil {
				return err
			}
			msg, err := findMessage(h, ids[2])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "id:   %s\ntype: %s\nfrom: %s\nto:   %s\n", msg.ID, msg.Type(), msg.From, strings.Join(msg.To, ", "))
			if msg.ExpiresTime > 0 {
				fmt.Fprintf(w, "expires: %s\n", time.Unix(msg.ExpiresTime, 0).UTC().Format(time.RFC3339))
			}
			if body, ok := msg.Direct(); ok {
				fmt.Fprintf(w, "\n%s\n", body.Content)
			}
			return nil
		}),
	}

	remove := &cobra.Command{
		Use:   "remove BUCKET MESSAGE",
		Short: "Remove a message (governance)",
		Args:  cobra.ExactArgs(2),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			ids, err := parseIDs(args, "bucket", "message")
			if err != nil {
				return err
			}
			tx, err := c.RemoveMessage(ctx, ids[0], ids[1])
			if err != nil {
				return err
			}
			a.printTx(cmd, fmt.Sprintf("message %d removed", ids[1]), tx)
			return nil
		}),
	}

	cmd.AddCommand(show, remove)
	return cmd
}
