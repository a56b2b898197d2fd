// Package main generates the host CA, the host certificate and a popup
// client certificate, writing them to the "certs" directory.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/atinyakov/gnoixus/internal/certgen"
)

// PopupID is the context id baked into the bundled popup certificate.
const PopupID = "popup"

func main() {
	dir := "certs"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	if err := run(dir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("Certificates generated into", dir)
}

func run(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	ca, err := certgen.NewAuthority("Gnoixus CA")
	if err != nil {
		return err
	}
	caCert, caKey, err := ca.PEM()
	if err != nil {
		return err
	}
	if err := certgen.WritePair(filepath.Join(dir, certgen.CACertFile), filepath.Join(dir, certgen.CAKeyFile), caCert, caKey); err != nil {
		return err
	}

	serverCert, serverKey, err := ca.GenerateServerCertificate("localhost")
	if err != nil {
		return err
	}
	if err := certgen.WritePair(filepath.Join(dir, certgen.ServerCertFile), filepath.Join(dir, certgen.ServerKeyFile), serverCert, serverKey); err != nil {
		return err
	}

	popupCert, popupKey, err := ca.GenerateContextCertificate(PopupID)
	if err != nil {
		return err
	}
	return certgen.WritePair(filepath.Join(dir, PopupID+".crt"), filepath.Join(dir, PopupID+".key"), popupCert, popupKey)
}
