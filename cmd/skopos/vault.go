package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/mtzanidakis/skopos/internal/config"
	"github.com/mtzanidakis/skopos/internal/store"
	"github.com/mtzanidakis/skopos/internal/vault"
)

func runVault(args []string) error {
	if len(args) == 0 {
		printVaultUsage()
		return nil
	}

	passphrase := os.Getenv("SKOPOS_VAULT_PASSPHRASE")
	if passphrase == "" {
		return fmt.Errorf("SKOPOS_VAULT_PASSPHRASE environment variable is required")
	}

	v := vault.New(passphrase)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	switch args[0] {
	case "list":
		return vaultList(db)
	case "set":
		return vaultSet(db, v, args[1:])
	case "get":
		return vaultGet(db, v, args[1:])
	case "delete":
		return vaultDelete(db, args[1:])
	default:
		printVaultUsage()
		return fmt.Errorf("unknown vault command: %s", args[0])
	}
}

func printVaultUsage() {
	fmt.Fprintf(os.Stderr, `Usage: skopos vault <command>

Commands:
  list                              List stored site credentials (metadata only)
  set <host> --value <password> [--username <user>] [--description <text>]
                                    Store a credential for a host
  get <host>                        Decrypt and print a credential
  delete <host>                     Delete a credential

Environment:
  SKOPOS_VAULT_PASSPHRASE           Required. Encryption passphrase.
`)
}

func vaultList(db *store.Store) error {
	secrets, err := db.ListSecrets()
	if err != nil {
		return err
	}
	if len(secrets) == 0 {
		fmt.Println("No credentials stored.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tUSERNAME\tDESCRIPTION\tUPDATED")
	for _, s := range secrets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.Host, s.Username, s.Description, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func vaultSet(db *store.Store, v *vault.Vault, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: skopos vault set <host> --value <password> [--username <user>] [--description <text>]")
	}

	host := args[0]
	var value, username, description string

	for i := 1; i < len(args)-1; i++ {
		switch args[i] {
		case "--value":
			i++
			value = args[i]
		case "--username":
			i++
			username = args[i]
		case "--description":
			i++
			description = args[i]
		}
	}

	if value == "" {
		return fmt.Errorf("missing --value flag")
	}

	ciphertext, nonce, err := v.Encrypt([]byte(value), host)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}

	sec := &store.Secret{
		ID:          uuid.NewString(),
		Host:        host,
		Username:    username,
		Value:       ciphertext,
		Nonce:       nonce,
		Description: description,
	}

	if err := db.SaveSecret(sec); err != nil {
		return err
	}
	fmt.Printf("Credential for %q saved\n", host)
	return nil
}

func vaultGet(db *store.Store, v *vault.Vault, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: skopos vault get <host>")
	}

	sec, err := db.GetSecretByHost(args[0])
	if err != nil {
		return err
	}
	if sec == nil {
		return fmt.Errorf("no credential stored for %q", args[0])
	}

	plaintext, err := v.Decrypt(sec.Value, sec.Nonce, sec.Host)
	if err != nil {
		return fmt.Errorf("decrypt: %w", err)
	}

	if sec.Username != "" {
		fmt.Printf("Username: %s\n", sec.Username)
	}
	fmt.Printf("Password: %s\n", plaintext)
	return nil
}

func vaultDelete(db *store.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: skopos vault delete <host>")
	}

	sec, err := db.GetSecretByHost(args[0])
	if err != nil {
		return err
	}
	if sec == nil {
		return fmt.Errorf("no credential stored for %q", args[0])
	}

	if err := db.DeleteSecret(sec.ID); err != nil {
		return err
	}
	fmt.Printf("Credential for %q deleted\n", args[0])
	return nil
}
