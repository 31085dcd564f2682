package cli

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mrlokans/syncserver/internal/auth"
	"github.com/mrlokans/syncserver/internal/config"
	"github.com/mrlokans/syncserver/internal/database"
	"github.com/mrlokans/syncserver/internal/entities"
)

// ResetPasswordCommand rewrites the stored password hash directly in the
// database, for operators locked out of their instance. All sessions of the
// password and header methods are invalidated.
type ResetPasswordCommand struct {
	DatabasePath string
	Password     string
}

func NewResetPasswordCommand() *ResetPasswordCommand {
	return &ResetPasswordCommand{}
}

func (cmd *ResetPasswordCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ExitOnError)

	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (defaults to DATABASE_PATH)")
	fs.StringVar(&cmd.Password, "password", "", "New password (prompted for when omitted)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s reset-password [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Reset the server password and switch the login method back to password.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	return fs.Parse(args)
}

func (cmd *ResetPasswordCommand) Run() error {
	cfg := config.NewConfig()
	if cmd.DatabasePath == "" {
		cmd.DatabasePath = cfg.Database.Path
	}

	if cmd.Password == "" {
		fmt.Print("New password: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		cmd.Password = strings.TrimRight(line, "\r\n")
	}
	if cmd.Password == "" {
		return fmt.Errorf("password must not be empty")
	}

	db, err := database.NewDatabase(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	hash, err := auth.HashPassword(cmd.Password, cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	row := &entities.AuthMethod{
		Method:      entities.LoginMethodPassword,
		DisplayName: "Password",
		ExtraData:   hash,
	}
	if err := db.ReplaceActiveAuthMethod(row); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}

	if err := db.DeleteSessionsForMethods(
		entities.LoginMethodPassword,
		entities.LoginMethodHeader,
		entities.LoginMethodOpenID,
	); err != nil {
		return fmt.Errorf("failed to invalidate sessions: %w", err)
	}

	fmt.Println("Password reset. All sessions have been invalidated.")
	return nil
}
