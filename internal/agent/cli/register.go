package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iudanet/zfswitness/internal/agent/cache"
	clientapi "github.com/iudanet/zfswitness/internal/client/api"
	"github.com/iudanet/zfswitness/pkg/api"
)

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var (
		hostname      string
		transportHost string
		transportUser string
		transportPort int
		passwordFile  string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register this node with the server",
		Long: "Registers the node under an admin account and stores the issued\n" +
			"API key in the local cache. Re-registering the same hostname rotates\n" +
			"the key and resets the node's inventory on the server.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if hostname == "" {
				detected, err := os.Hostname()
				if err != nil {
					return fmt.Errorf("failed to detect hostname: %w", err)
				}
				hostname = detected
			}
			if transportHost == "" {
				transportHost = hostname
			}

			password, err := readAdminPassword(passwordFile)
			if err != nil {
				return err
			}

			client := clientapi.NewClient(opts.serverURL)

			fmt.Println("Authenticating...")
			token, err := client.Login(ctx, password)
			if err != nil {
				return err
			}

			fmt.Printf("Registering node %q...\n", hostname)
			resp, err := client.RegisterNode(ctx, token.AccessToken, api.RegisterNodeRequest{
				Hostname:          hostname,
				Platform:          platform(),
				TransportHostname: transportHost,
				TransportUser:     transportUser,
				TransportPort:     transportPort,
			})
			if err != nil {
				return err
			}

			store, err := cache.New(opts.cachePath)
			if err != nil {
				return fmt.Errorf("failed to open cache: %w", err)
			}
			defer store.Close()

			if err := store.SaveIdentity(&cache.Identity{
				NodeID:    resp.Node.ID,
				Hostname:  resp.Node.Hostname,
				APIKey:    resp.APIKey,
				ServerURL: opts.serverURL,
			}); err != nil {
				return fmt.Errorf("failed to save identity: %w", err)
			}

			fmt.Println()
			fmt.Println("✓ Registration successful!")
			fmt.Printf("Node ID:  %s\n", resp.Node.ID)
			fmt.Printf("Hostname: %s\n", resp.Node.Hostname)
			fmt.Println()
			fmt.Println("The API key is stored in the local cache. The server keeps only")
			fmt.Println("its hash, so losing the cache file means registering again.")

			return nil
		},
	}

	cmd.Flags().StringVar(&hostname, "hostname", "", "Node hostname (default: system hostname)")
	cmd.Flags().StringVar(&transportHost, "transport-host", "", "Hostname other nodes use for zfs send (default: --hostname)")
	cmd.Flags().StringVar(&transportUser, "transport-user", "", "SSH user for zfs receive")
	cmd.Flags().IntVar(&transportPort, "transport-port", 22, "SSH port for zfs receive")
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "Path to file containing admin password")

	return cmd
}
