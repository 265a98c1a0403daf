// Command admin-otp generates the admin TOTP secret and prints it encrypted
// for ADMIN_TOTP_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"escrow-market/pkg/auth"
)

func main() {
	issuer := flag.String("issuer", "Escrow Market", "issuer shown in the authenticator app")
	account := flag.String("account", "admin", "account name shown in the authenticator app")
	passphrase := flag.String("passphrase", os.Getenv("ADMIN_TOTP_PASSPHRASE"), "passphrase the secret is encrypted with")
	flag.Parse()

	if *passphrase == "" {
		logrus.Fatal("a passphrase is required (-passphrase or ADMIN_TOTP_PASSPHRASE)")
	}

	key, err := auth.GenerateSecret(*issuer, *account)
	if err != nil {
		logrus.Fatal(err)
	}
	encrypted, err := auth.EncryptSecret(key.Secret(), *passphrase)
	if err != nil {
		logrus.Fatalf("Failed to encrypt secret: %v", err)
	}

	fmt.Printf("Provisioning URL: %s\n", key.URL())
	fmt.Printf("ADMIN_TOTP_SECRET=%s\n", encrypted)
}
