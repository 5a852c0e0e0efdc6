package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"privcal/internal/domain"
)

func initCmd() *cobra.Command {
	var importKey string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate identity keys and store them securely",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			if appCtx.Store.Exists() {
				return fmt.Errorf("identity already exists in %s", appCtx.Config.Home)
			}
			var (
				pub string
				fp  domain.Fingerprint
			)
			if importKey != "" {
				id, f, err := appCtx.Identities.ImportIdentity(passphrase, importKey)
				if err != nil {
					return err
				}
				pub, fp = id.PublicKey, f
			} else {
				id, f, err := appCtx.Identities.GenerateIdentity(passphrase)
				if err != nil {
					return err
				}
				pub, fp = id.PublicKey, f
			}
			fmt.Printf("Identity created.\nPublic key:  %s\nFingerprint: %s\n", pub, fp)
			return nil
		},
	}
	cmd.Flags().StringVar(&importKey, "import", "", "hex secret key to import instead of generating one")
	return cmd
}

func pubkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pubkey",
		Short: "Print your public key and its fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := unlock(cmd)
			if err != nil {
				return err
			}
			pub, err := s.PublicKey(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Public key:  %s\nFingerprint: %s\n", pub, fingerprint(pub))
			return nil
		},
	}
}
