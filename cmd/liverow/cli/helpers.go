package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/liverow/liverow"
)

// openSession connects using the persistent flags / LIVEROW_* env / config
// file settings shared by all subcommands.
func openSession(ctx context.Context, cmd *cobra.Command) (*liverow.Session, error) {
	driver := viper.GetString("driver")
	dsn := viper.GetString("dsn")
	if driver == "" {
		return nil, fmt.Errorf("no driver given (use --driver or LIVEROW_DRIVER)")
	}
	if dsn == "" {
		return nil, fmt.Errorf("no DSN given (use --dsn or LIVEROW_DSN)")
	}

	if prompt, _ := cmd.Flags().GetBool("password-prompt"); prompt {
		var err error
		dsn, err = injectPassword(dsn)
		if err != nil {
			return nil, err
		}
	}

	var opts []liverow.Option
	if schemaName := viper.GetString("db_schema"); schemaName != "" {
		opts = append(opts, liverow.WithSchema(schemaName))
	}
	opts = append(opts, liverow.WithErrorFormat(liverow.RecordFormat{}))

	return liverow.Open(ctx, driver, dsn, opts...)
}

// injectPassword prompts for a password on the terminal and substitutes it
// for the {password} placeholder in the DSN, so credentials never appear in
// shell history or process listings.
func injectPassword(dsn string) (string, error) {
	if !strings.Contains(dsn, "{password}") {
		return "", fmt.Errorf("--password-prompt requires a {password} placeholder in the DSN")
	}

	fmt.Print("Password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	return strings.ReplaceAll(dsn, "{password}", string(pwBytes)), nil
}
