package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"privcal/internal/crypto"
	"privcal/internal/domain"
)

func fingerprint(pub string) domain.Fingerprint { return crypto.Fingerprint(pub) }

func relaysCmd() *cobra.Command {
	var purpose string
	cmd := &cobra.Command{
		Use:   "relays [pubkey]",
		Short: "Show where a pubkey reads and writes (default: yours)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParsePurpose(purpose)
			if err != nil {
				return err
			}
			var pub string
			if len(args) == 1 {
				if !crypto.ValidPublicKey(args[0]) {
					return fmt.Errorf("%w: %s", crypto.ErrInvalidKey, args[0])
				}
				pub = args[0]
			} else {
				s, err := unlock(cmd)
				if err != nil {
					return err
				}
				if pub, err = s.PublicKey(cmd.Context()); err != nil {
					return err
				}
			}
			for _, pref := range appCtx.Resolver.Resolve(cmd.Context(), pub, p) {
				fmt.Printf("%s\t%s\n", pref.URL, marker(pref))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&purpose, "purpose", string(domain.PurposeGeneral), "general or private")
	cmd.AddCommand(relaysSetCmd())
	return cmd
}

func relaysSetCmd() *cobra.Command {
	var (
		purpose string
		both    []string
		read    []string
		write   []string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Publish your relay list",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParsePurpose(purpose)
			if err != nil {
				return err
			}
			var prefs []domain.RelayPreference
			for _, u := range both {
				prefs = append(prefs, domain.RelayPreference{URL: u, Read: true, Write: true})
			}
			for _, u := range read {
				prefs = append(prefs, domain.RelayPreference{URL: u, Read: true})
			}
			for _, u := range write {
				prefs = append(prefs, domain.RelayPreference{URL: u, Write: true})
			}
			s, err := unlock(cmd)
			if err != nil {
				return err
			}
			res, err := appCtx.Resolver.Publish(cmd.Context(), s, p, prefs)
			if err != nil {
				return err
			}
			fmt.Printf("Published %s relay list to %d relay(s).\n", p, len(res.Accepted))
			for u, ferr := range res.Failed {
				fmt.Printf("  failed %s: %v\n", u, ferr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&purpose, "purpose", string(domain.PurposeGeneral), "general or private")
	cmd.Flags().StringSliceVar(&both, "both", nil, "relay used for reading and writing, repeatable")
	cmd.Flags().StringSliceVar(&read, "read", nil, "read-only relay, repeatable")
	cmd.Flags().StringSliceVar(&write, "write", nil, "write-only relay, repeatable")
	return cmd
}

func marker(p domain.RelayPreference) string {
	switch {
	case p.Read && p.Write:
		return "read,write"
	case p.Read:
		return "read"
	default:
		return "write"
	}
}
