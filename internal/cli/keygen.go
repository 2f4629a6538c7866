package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fableworks/coinledger/internal/infra/paysign"
)

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringP("out", "o", ".", "Directory for private_key.pem and public_key.pem")
	keygenCmd.Flags().Bool("force", false, "Overwrite existing key files")
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an RSA-2048 key pair for order signing",
	Long: `Generate an RSA-2048 key pair. Upload public_key.pem to the payment
platform console and point payment.private_key_path at private_key.pem.`,
	RunE: runKeygen,
}

func runKeygen(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("out")
	force, _ := cmd.Flags().GetBool("force")

	privPath := filepath.Join(dir, "private_key.pem")
	pubPath := filepath.Join(dir, "public_key.pem")
	if !force {
		for _, p := range []string{privPath, pubPath} {
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("%s exists; use --force to overwrite", p)
			}
		}
	}

	key, err := paysign.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	priv, err := paysign.EncodePrivateKey(key)
	if err != nil {
		return err
	}
	pub, err := paysign.EncodePublicKey(&key.PublicKey)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(privPath, priv, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, pub, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}

	fmt.Fprintf(os.Stdout, "✅ Private key: %s\n", privPath)
	fmt.Fprintf(os.Stdout, "   Public key:  %s (upload to the platform console)\n", pubPath)
	return nil
}
