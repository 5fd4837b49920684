package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ldttech/poscore/internal/crypto"
	"github.com/ldttech/poscore/internal/erpnext"
	"github.com/ldttech/poscore/internal/models"
)

var (
	loginURL      string
	loginUser     string
	loginPassword string
)

// storedSession is the login_session settings record. The API secret is
// encrypted with a machine-derived key before it touches the database.
type storedSession struct {
	BaseURL         string `json:"base_url"`
	APIKey          string `json:"api_key"`
	APISecretCipher string `json:"api_secret_cipher"`
	User            string `json:"user,omitempty"`
	FullName        string `json:"full_name,omitempty"`
	Company         string `json:"company,omitempty"`
	SavedAt         string `json:"saved_at,omitempty"`
}

func machineID() string {
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}

func (s storedSession) toSession() (models.Session, error) {
	secret, err := crypto.DecryptSecret(s.APISecretCipher, machineID())
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{
		BaseURL:   s.BaseURL,
		APIKey:    s.APIKey,
		APISecret: secret,
		User:      s.User,
		SavedAt:   s.SavedAt,
	}, nil
}

// loginCmd exchanges ERP credentials for API keys and saves them locally
// so the daemon can authenticate without credentials in the config file.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the ERP backend and save the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cfg, nil)
		if err != nil {
			return err
		}
		defer c.close()

		baseURL := strings.TrimRight(loginURL, "/")
		if baseURL == "" {
			baseURL = cfg.Remote.BaseURL
		}
		if baseURL == "" {
			return fmt.Errorf("no server URL; pass --url or set remote.base_url")
		}

		password := loginPassword
		if password == "" {
			fmt.Fprint(os.Stderr, "Password: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			password = strings.TrimSpace(line)
		}

		client := erpnext.NewClient(models.Session{BaseURL: baseURL})
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		result, err := client.Login(ctx, loginUser, password)
		if err != nil {
			return err
		}

		cipher, err := crypto.EncryptSecret(result.APISecret, machineID())
		if err != nil {
			return err
		}
		saved := storedSession{
			BaseURL:         baseURL,
			APIKey:          result.APIKey,
			APISecretCipher: cipher,
			User:            result.User,
			FullName:        result.FullName,
			Company:         result.Company,
			SavedAt:         time.Now().UTC().Format(time.RFC3339),
		}
		if err := c.repo.PutSetting(settingSession, saved); err != nil {
			return err
		}

		fmt.Printf("logged in as %s (%s)\n", result.User, result.FullName)
		if result.Company != "" {
			fmt.Printf("company: %s\n", result.Company)
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginURL, "url", "", "ERP server URL")
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "username or email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password (prompted if omitted)")
	loginCmd.MarkFlagRequired("user")
}
