// Command accounts is a CLI client for the accounts service.
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	insecurecreds "google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/and161185/goph-accounts/internal/rpc"
	grpcserver "github.com/and161185/goph-accounts/internal/server/grpc"
)

// ---- config/token store ----

type tokenFile struct {
	Token   string    `json:"token"`
	Email   string    `json:"email"`
	SavedAt time.Time `json:"saved_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "accounts")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "accounts")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok, email string) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{Token: tok, Email: email, SavedAt: time.Now().UTC()})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", errors.New("no saved token (login required)")
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.Token == "" {
		return "", errors.New("no saved token (login required)")
	}
	return tf.Token, nil
}

func forgetToken() error {
	err := os.Remove(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{rpc.MDAuthorization: "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func loadTLS(caPath string, insecure bool) (credentials.TransportCredentials, error) {
	if insecure {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// app carries global flags and I/O for the subcommands.
type app struct {
	addr      string
	caPath    string
	insecure  bool
	plaintext bool

	in  io.Reader
	out io.Writer

	// dialer overrides the network dial, used by tests.
	dialer func(context.Context, string) (net.Conn, error)
}

func (a *app) connect(ctx context.Context, bearer string) (*rpc.AccountsClient, func(), error) {
	var opts []grpc.DialOption
	if a.plaintext {
		opts = append(opts, grpc.WithTransportCredentials(insecurecreds.NewCredentials()))
	} else {
		creds, err := loadTLS(a.caPath, a.insecure)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !a.plaintext}))
	}
	if a.dialer != nil {
		opts = append(opts, grpc.WithContextDialer(a.dialer))
	}
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	cc, err := grpc.DialContext(ctx, a.addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return rpc.NewAccountsClient(cc), func() { _ = cc.Close() }, nil
}

// ---- utils ----

// secret returns v, or reads it from the terminal without echo, or from a.in when piped.
func (a *app) secret(v, prompt string) (string, error) {
	if v != "" {
		return v, nil
	}
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *app) printJSON(v any) {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `accounts CLI
Usage:
  accounts -addr HOST:PORT [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  signup     -u <username> -e <email> [-p <password>]
  verify     -e <email> -code <code>
  login      -e <email> [-p <password>]            (saves token)
  logout                                           (revokes every token)
  forgot     -e <email>
  reset      -e <email> -code <code> [-p <new password>]
  delete                                           (soft-deletes your account)
  restore    -id <account id> [-admin-token <jwt>]
  mint-admin -key <signing key> [-sub <name>] [-ttl 15m]
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS/auth for RPC calls.
func main() {
	// global flags
	addr := flag.String("addr", "localhost:9090", "server addr")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	insecure := flag.Bool("insecure", false, "skip cert verify (dev)")
	plaintext := flag.Bool("plaintext", false, "dial without TLS (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	a := &app{
		addr:      *addr,
		caPath:    *caPath,
		insecure:  *insecure,
		plaintext: *plaintext,
		in:        os.Stdin,
		out:       os.Stdout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "version" {
		fmt.Printf("accounts %s (%s)\n", version, buildDate)
		return
	}
	if _, ok := commands[cmd]; !ok {
		usage()
	}
	if err := a.run(ctx, cmd, args); err != nil {
		fail(err)
	}
}

// ---- helpers ----

func describe(err error) string {
	s, ok := status.FromError(err)
	if !ok {
		return err.Error()
	}
	msg := fmt.Sprintf("rpc error: code=%s msg=%s", s.Code(), s.Message())
	for _, f := range grpcserver.FieldErrors(err) {
		msg += "\n  - " + f
	}
	return msg
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, describe(err))
	os.Exit(1)
}
