// Command rsadvctl is a thin client for rsadvd's control socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/AdguardTeam/rsadv/internal/ctrlproto"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "rsadvctl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return usageError{}
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "add-prefix":
		return runAddPrefix(rest)
	case "remove-prefix":
		return runRemovePrefix(rest)
	case "add-dns":
		return runAddDNS(rest)
	case "remove-dns":
		return runRemoveDNS(rest)
	default:
		return usageError{}
	}
}

// usageError is returned for an unrecognized or missing subcommand.
type usageError struct{}

func (usageError) Error() string {
	return "usage: rsadvctl <add-prefix|remove-prefix|add-dns|remove-dns> [flags]"
}

// prefixFlagSet builds the add-prefix flag set (-socket, -prefix, -preferred,
// -valid, and -until), returning pointers to the flag values, which are
// filled in by parsing.
func prefixFlagSet(name string) (fs *flag.FlagSet, sock, prefix *string, preferred, valid *time.Duration, until *string) {
	fs = flag.NewFlagSet(name, flag.ExitOnError)
	sock = fs.String("socket", "/run/rsadv.sock", "path to the daemon's control socket")
	prefix = fs.String("prefix", "", "prefix in address/length form, e.g. 2001:db8::/64")
	preferred = fs.Duration("preferred", time.Hour, "preferred lifetime")
	valid = fs.Duration("valid", 24*time.Hour, "valid lifetime")
	until = fs.String("until", "", "RFC 3339 absolute expiry, overriding -preferred/-valid")

	return fs, sock, prefix, preferred, valid, until
}

func runAddPrefix(args []string) error {
	fs, sock, prefixFlag, preferred, valid, until := prefixFlagSet("add-prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}

	prefix, err := netip.ParsePrefix(*prefixFlag)
	if err != nil {
		return fmt.Errorf("parsing -prefix: %w", err)
	}

	preferredLT, validLT, err := resolveLifetimes(*until, *preferred, *valid)
	if err != nil {
		return err
	}

	req := ctrlproto.AddPrefix{Prefix: ctrlproto.Prefix{
		Addr:         prefix.Addr(),
		PrefixLength: uint8(prefix.Bits()),
		Preferred:    preferredLT,
		Valid:        validLT,
	}}

	return sendRequest(*sock, req)
}

func runRemovePrefix(args []string) error {
	fs := flag.NewFlagSet("remove-prefix", flag.ExitOnError)
	sock := fs.String("socket", "/run/rsadv.sock", "path to the daemon's control socket")
	prefixFlag := fs.String("prefix", "", "prefix in address/length form, e.g. 2001:db8::/64")
	if err := fs.Parse(args); err != nil {
		return err
	}

	prefix, err := netip.ParsePrefix(*prefixFlag)
	if err != nil {
		return fmt.Errorf("parsing -prefix: %w", err)
	}

	req := ctrlproto.RemovePrefix{Prefix: ctrlproto.Prefix{
		Addr:         prefix.Addr(),
		PrefixLength: uint8(prefix.Bits()),
	}}

	return sendRequest(*sock, req)
}

func runAddDNS(args []string) error {
	fs := flag.NewFlagSet("add-dns", flag.ExitOnError)
	sock := fs.String("socket", "/run/rsadv.sock", "path to the daemon's control socket")
	addrFlag := fs.String("addr", "", "recursive DNS server address")
	lifetime := fs.Duration("lifetime", time.Hour, "lifetime")
	until := fs.String("until", "", "RFC 3339 absolute expiry, overriding -lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addr, err := netip.ParseAddr(*addrFlag)
	if err != nil {
		return fmt.Errorf("parsing -addr: %w", err)
	}

	lt, err := resolveLifetime(*until, *lifetime)
	if err != nil {
		return err
	}

	req := ctrlproto.AddDNSServer{Server: ctrlproto.DNSServer{Addr: addr, Lifetime: lt}}

	return sendRequest(*sock, req)
}

func runRemoveDNS(args []string) error {
	fs := flag.NewFlagSet("remove-dns", flag.ExitOnError)
	sock := fs.String("socket", "/run/rsadv.sock", "path to the daemon's control socket")
	addrFlag := fs.String("addr", "", "recursive DNS server address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addr, err := netip.ParseAddr(*addrFlag)
	if err != nil {
		return fmt.Errorf("parsing -addr: %w", err)
	}

	req := ctrlproto.RemoveDNSServer{Server: ctrlproto.DNSServer{Addr: addr}}

	return sendRequest(*sock, req)
}

// resolveLifetimes converts the -until/-preferred/-valid flag trio into wire
// lifetimes, reusing the preferred lifetime's kind for both per-prefix
// fields: an absolute -until applies to both, relative durations apply
// independently.
func resolveLifetimes(until string, preferred, valid time.Duration) (p, v ctrlproto.Lifetime, err error) {
	if until == "" {
		return durationLifetime(preferred), durationLifetime(valid), nil
	}

	t, err := time.Parse(time.RFC3339, until)
	if err != nil {
		return ctrlproto.Lifetime{}, ctrlproto.Lifetime{}, fmt.Errorf("parsing -until: %w", err)
	}

	lt := untilLifetime(t)

	return lt, lt, nil
}

func resolveLifetime(until string, lifetime time.Duration) (ctrlproto.Lifetime, error) {
	if until == "" {
		return durationLifetime(lifetime), nil
	}

	t, err := time.Parse(time.RFC3339, until)
	if err != nil {
		return ctrlproto.Lifetime{}, fmt.Errorf("parsing -until: %w", err)
	}

	return untilLifetime(t), nil
}

func durationLifetime(d time.Duration) ctrlproto.Lifetime {
	return ctrlproto.Lifetime{Kind: ctrlproto.LifetimeDuration, Seconds: uint32(d / time.Second)}
}

func untilLifetime(t time.Time) ctrlproto.Lifetime {
	return ctrlproto.Lifetime{Kind: ctrlproto.LifetimeUntil, Seconds: uint32(t.Unix())}
}

// sendRequest dials sockPath, sends req, and reports the daemon's response.
func sendRequest(sockPath string, req ctrlproto.Request) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", sockPath)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", sockPath, err)
	}
	defer conn.Close()

	if err = ctrlproto.WriteRequest(conn, req); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	resp, err := ctrlproto.ReadResponse(conn)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	switch resp.(type) {
	case ctrlproto.Ok:
		fmt.Println("ok")

		return nil
	default:
		return fmt.Errorf("unexpected response %T", resp)
	}
}
