package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/olakz-ops/export-chat-converter/internal/config"
)

var (
	useKeyring   bool
	skipValidate bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Store the OpenAI API key",
	Long: `Interactively stores the OpenAI API key used for transcription.
The key is validated against the API and written to
~/.config/wachat/config.json, or to the OS keyring with --keyring.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&useKeyring, "keyring", false, "Store the key in the OS keyring instead of the config file")
	initCmd.Flags().BoolVar(&skipValidate, "no-validate", false, "Do not check the key against the API")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	dir := configDir()
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())

	existingKey := config.ExistingAPIKey(dir)
	if existingKey != "" && !useKeyring {
		fmt.Fprintf(out, "Config already has an API key at %s\n", config.Path(dir))
		fmt.Fprint(out, "Overwrite? [y/N]: ")

		answer, _ := readLine(in)
		if !strings.EqualFold(answer, "y") {
			return nil
		}
	}

	prompt := "OpenAI API Key: "
	if existingKey != "" {
		prompt = fmt.Sprintf("OpenAI API Key [%s]: ", maskKey(existingKey))
	}
	fmt.Fprint(out, prompt)

	apiKey, err := readSecret(cmd.InOrStdin(), in)
	if err != nil {
		return fmt.Errorf("reading API key: %w", err)
	}
	fmt.Fprintln(out)

	if apiKey == "" && existingKey != "" {
		apiKey = existingKey
	}
	if apiKey == "" {
		return fmt.Errorf("API key must not be empty")
	}

	if !skipValidate {
		fmt.Fprint(out, "Validating API key... ")
		if err := validateAPIKey(cmd.Context(), apiKey, viper.GetString(config.KeyBaseURL)); err != nil {
			fmt.Fprintln(out, "FAILED")
			return fmt.Errorf("invalid API key: %w", err)
		}
		fmt.Fprintln(out, "OK")
	}

	if useKeyring {
		if err := config.StoreKeyring(apiKey); err != nil {
			return err
		}
		fmt.Fprintln(out, "API key stored in the OS keyring")
		return nil
	}

	path, err := config.SaveAPIKey(dir, apiKey)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Config written to %s\n", path)
	return nil
}

// readSecret reads the key without echo when stdin is a terminal.
func readSecret(stdin io.Reader, buffered *bufio.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		b, err := term.ReadPassword(int(f.Fd())) //nolint:gosec // fd fits in int
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return readLine(buffered)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func maskKey(key string) string {
	if len(key) <= 10 {
		return "***"
	}
	return key[:7] + "***" + key[len(key)-3:]
}

func validateAPIKey(ctx context.Context, apiKey, baseURL string) error {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	_, err := client.Models.List(ctx)
	return err
}
