package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/syncserver/internal/config"
	"github.com/mrlokans/syncserver/internal/database"
	"github.com/mrlokans/syncserver/internal/entities"
	"github.com/mrlokans/syncserver/internal/openid"
)

// EnableOpenIDCommand installs a federated provider configuration from a JSON
// file as the active login method, bypassing the HTTP surface. Useful when an
// operator broke the provider configuration and can no longer log in to fix
// it.
type EnableOpenIDCommand struct {
	DatabasePath string
	ConfigPath   string
}

func NewEnableOpenIDCommand() *EnableOpenIDCommand {
	return &EnableOpenIDCommand{}
}

func (cmd *EnableOpenIDCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("enable-openid", flag.ExitOnError)

	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (defaults to DATABASE_PATH)")
	fs.StringVar(&cmd.ConfigPath, "config", "", "Path to the provider configuration JSON file (required)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s enable-openid [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Switch the login method to the federated provider described in a JSON file.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample configuration file:\n")
		fmt.Fprintf(os.Stderr, "  {\n")
		fmt.Fprintf(os.Stderr, "    \"client_id\": \"...\",\n")
		fmt.Fprintf(os.Stderr, "    \"client_secret\": \"...\",\n")
		fmt.Fprintf(os.Stderr, "    \"authorization_endpoint\": \"https://provider/authorize\",\n")
		fmt.Fprintf(os.Stderr, "    \"token_endpoint\": \"https://provider/token\",\n")
		fmt.Fprintf(os.Stderr, "    \"userinfo_endpoint\": \"https://provider/userinfo\"\n")
		fmt.Fprintf(os.Stderr, "  }\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.ConfigPath == "" {
		fs.Usage()
		return fmt.Errorf("config file is required")
	}
	return nil
}

func (cmd *EnableOpenIDCommand) Run() error {
	cfg := config.NewConfig()
	if cmd.DatabasePath == "" {
		cmd.DatabasePath = cfg.Database.Path
	}

	raw, err := os.ReadFile(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var providerCfg openid.ProviderConfig
	if err := json.Unmarshal(raw, &providerCfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := providerCfg.Validate(); err != nil {
		return fmt.Errorf("invalid provider configuration: %w", err)
	}

	db, err := database.NewDatabase(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	stored, err := json.Marshal(providerCfg)
	if err != nil {
		return fmt.Errorf("failed to serialize configuration: %w", err)
	}

	row := &entities.AuthMethod{
		Method:      entities.LoginMethodOpenID,
		DisplayName: "OpenID",
		ExtraData:   string(stored),
	}
	if err := db.ReplaceActiveAuthMethod(row); err != nil {
		return fmt.Errorf("failed to store provider configuration: %w", err)
	}

	if err := db.DeleteSessionsForMethods(
		entities.LoginMethodPassword,
		entities.LoginMethodHeader,
	); err != nil {
		return fmt.Errorf("failed to invalidate sessions: %w", err)
	}

	fmt.Println("OpenID login enabled.")
	return nil
}
