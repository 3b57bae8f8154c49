package cli

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/iudanet/zfswitness/internal/agent"
	"github.com/iudanet/zfswitness/internal/agent/cache"
	"github.com/iudanet/zfswitness/internal/client/api"
)

// rootOptions глобальные флаги агента
type rootOptions struct {
	serverURL string
	cachePath string
}

// New собирает дерево команд агента
func New(version, buildDate, gitCommit string) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "zfswitness-agent",
		Short: "ZFS snapshot witness node agent",
		Long: "Node agent for the zfswitness control plane: reports the local\n" +
			"ZFS snapshot inventory and pulls replication instructions back.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.serverURL, "server", "http://localhost:8080", "Server URL")
	root.PersistentFlags().StringVar(&opts.cachePath, "cache", "zfswitness-agent.db", "Path to local cache database")

	root.AddCommand(
		newRegisterCmd(opts),
		newReportCmd(opts),
		newInstructionsCmd(opts),
		newStateCmd(opts),
		newVersionCmd(version, buildDate, gitCommit),
	)

	return root
}

// openService открывает кеш и собирает сервис агента с сохраненной identity
func openService(opts *rootOptions) (*agent.Service, *cache.Storage, error) {
	store, err := cache.New(opts.cachePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cache: %w", err)
	}

	identity, err := store.GetIdentity()
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	serverURL := opts.serverURL
	// Явный --server важнее сохраненного при регистрации
	if !isFlagExplicit(opts) && identity.ServerURL != "" {
		serverURL = identity.ServerURL
	}

	client := api.NewClient(serverURL)
	client.SetAPIKey(identity.APIKey)

	logger := newLogger()
	return agent.NewService(logger, client, store, agent.NewZFSLister("")), store, nil
}

func isFlagExplicit(opts *rootOptions) bool {
	// Дефолт означает "не задан", сохраненный при регистрации URL приоритетнее
	return opts.serverURL != "http://localhost:8080"
}

// readAdminPassword retrieves the admin password with priority:
// 1. Environment variable ZW_ADMIN_PASSWORD
// 2. File specified in passwordFile parameter
// 3. Interactive prompt (fallback)
func readAdminPassword(passwordFile string) (string, error) {
	if envPassword := os.Getenv("ZW_ADMIN_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	if passwordFile != "" {
		content, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", fmt.Errorf("password file is empty")
		}
		return password, nil
	}

	password, err := readPassword("Admin password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return password, nil
}

// readPassword читает пароль без отображения на экране
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Переход на новую строку после ввода пароля
	if err != nil {
		return "", err
	}
	return string(passwordBytes), nil
}
